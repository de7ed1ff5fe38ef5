package ocsp

import (
	"bytes"
	"crypto/x509"
	"testing"

	"github.com/dpxrk/pactwise-signflow/crypts"
	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/dpxrk/pactwise-signflow/pki"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"
)

func newTestResponder(t *testing.T) (*Responder, *pki.Store) {
	t.Helper()
	crypts.AesSecretKey.Key = bytes.Repeat([]byte("k"), crypts.KeySize)

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	db.MustExec(models.SchemaCA)
	db.MustExec(models.SchemaUserCerts)

	store := pki.NewStore(db)
	return NewResponder(db, store), store
}

func issueLeaf(t *testing.T, store *pki.Store, rootCN, leafCN string) (*models.UserCertData, *x509.Certificate, *x509.Certificate) {
	t.Helper()
	root, err := store.IssueCA(pki.CARequest{
		Name:       rootCN,
		Algorithm:  crypts.AlgECDSA,
		TTL:        3650,
		CommonName: rootCN,
	})
	require.NoError(t, err)
	issued, err := store.IssueCertificate(pki.CertRequest{
		CAId:        root.Id,
		CommonName:  leafCN,
		GenerateKey: true,
		Algorithm:   crypts.AlgECDSA,
		TTL:         365,
	})
	require.NoError(t, err)

	leafCert, err := crypts.ParseCertificatePEM([]byte(issued.Cert.Certificate))
	require.NoError(t, err)
	rootCert, err := crypts.ParseCertificatePEM([]byte(root.PublicKey))
	require.NoError(t, err)
	return issued.Cert, leafCert, rootCert
}

func askStatus(t *testing.T, r *Responder, leafCert, issuerCert *x509.Certificate) int {
	t.Helper()
	reqDER, err := ocsp.CreateRequest(leafCert, issuerCert, nil)
	require.NoError(t, err)
	respDER, err := r.HandleRequest(reqDER)
	require.NoError(t, err)
	resp, err := ocsp.ParseResponseForCert(respDER, leafCert, issuerCert)
	require.NoError(t, err)
	return resp.Status
}

func TestResponderStatuses(t *testing.T) {
	r, store := newTestResponder(t)
	record, leafCert, rootCert := issueLeaf(t, store, "Acme Root", "Alice")

	assert.Equal(t, ocsp.Good, askStatus(t, r, leafCert, rootCert))

	require.NoError(t, store.RevokeCertificate(record.Id, "key_compromise"))
	assert.Equal(t, ocsp.Revoked, askStatus(t, r, leafCert, rootCert))
}

// Serials are per-CA counters, so two issuers both hold a certificate with
// serial 2. The responder must answer for the requested issuer's leaf, not
// whichever row the serial happens to hit first.
func TestResponderDisambiguatesIssuers(t *testing.T) {
	r, store := newTestResponder(t)
	recordA, leafA, rootA := issueLeaf(t, store, "Acme Root", "Alice")
	recordB, leafB, rootB := issueLeaf(t, store, "Globex Root", "Bob")
	require.Equal(t, recordA.SerialNumber, recordB.SerialNumber, "colliding serials across issuers")

	require.NoError(t, store.RevokeCertificate(recordA.Id, "key_compromise"))

	assert.Equal(t, ocsp.Revoked, askStatus(t, r, leafA, rootA))
	assert.Equal(t, ocsp.Good, askStatus(t, r, leafB, rootB))
}

func TestResponderUnknownCertificate(t *testing.T) {
	r, store := newTestResponder(t)
	_, leafCert, rootCert := issueLeaf(t, store, "Acme Root", "Alice")

	// A certificate from an issuer this responder has never seen, with the
	// same serial space, gets no answer.
	_, strangerStore := newTestResponder(t)
	_, strangerLeaf, strangerRoot := issueLeaf(t, strangerStore, "Stranger Root", "Mallory")

	reqDER, err := ocsp.CreateRequest(strangerLeaf, strangerRoot, nil)
	require.NoError(t, err)
	_, err = r.HandleRequest(reqDER)
	assert.ErrorIs(t, err, models.ErrUnknownCertificate)

	assert.Equal(t, ocsp.Good, askStatus(t, r, leafCert, rootCert))
}
