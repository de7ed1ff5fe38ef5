package pki

import (
	"bytes"
	"testing"

	"github.com/dpxrk/pactwise-signflow/crypts"
	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *sqlx.DB) {
	t.Helper()
	crypts.AesSecretKey.Key = bytes.Repeat([]byte("k"), crypts.KeySize)

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	db.MustExec(models.SchemaCA)
	db.MustExec(models.SchemaUserCerts)
	db.MustExec(models.SchemaSignatureRequests)
	db.MustExec(models.SchemaSignatories)
	db.MustExec(models.SchemaSignatureEvents)

	return NewStore(db), db
}

func issueRoot(t *testing.T, s *Store) *models.CAData {
	t.Helper()
	root, err := s.IssueCA(CARequest{
		Name:       "Acme Root",
		Algorithm:  crypts.AlgECDSA,
		TTL:        3650,
		CommonName: "Acme Root CA",
		Organization: "Acme",
	})
	require.NoError(t, err)
	return root
}

func TestIssueRootCA(t *testing.T) {
	s, _ := newTestStore(t)
	root := issueRoot(t, s)

	assert.True(t, root.IsRoot())
	assert.EqualValues(t, 0, root.ParentCAId)
	assert.EqualValues(t, 1, root.SerialNumber)
	assert.Equal(t, models.CertStatusActive, root.CertStatus)
	assert.NotEmpty(t, root.PublicKey)
	assert.NotEmpty(t, root.PrivateKey)

	// Self-signed: the certificate verifies under its own key.
	cert, err := crypts.ParseCertificatePEM([]byte(root.PublicKey))
	require.NoError(t, err)
	assert.NoError(t, cert.CheckSignatureFrom(cert))
}

func TestIssueSubCASerials(t *testing.T) {
	s, _ := newTestStore(t)
	root := issueRoot(t, s)

	sub1, err := s.IssueCA(CARequest{
		ParentCAId: root.Id,
		Name:       "Acme Issuing 1",
		Algorithm:  crypts.AlgECDSA,
		TTL:        1825,
		CommonName: "Acme Issuing CA 1",
	})
	require.NoError(t, err)
	sub2, err := s.IssueCA(CARequest{
		ParentCAId: root.Id,
		Name:       "Acme Issuing 2",
		Algorithm:  crypts.AlgECDSA,
		TTL:        1825,
		CommonName: "Acme Issuing CA 2",
	})
	require.NoError(t, err)

	// The issuing CA's counter is monotonic: the root's own serial is 1,
	// children draw 2, 3, ...
	assert.Equal(t, models.TypeCASub, sub1.TypeCA)
	assert.EqualValues(t, 2, sub1.SerialNumber)
	assert.EqualValues(t, 3, sub2.SerialNumber)

	subCert, err := crypts.ParseCertificatePEM([]byte(sub1.PublicKey))
	require.NoError(t, err)
	rootCert, err := crypts.ParseCertificatePEM([]byte(root.PublicKey))
	require.NoError(t, err)
	assert.NoError(t, subCert.CheckSignatureFrom(rootCert))
}

func TestIssueCAUnknownParent(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.IssueCA(CARequest{
		ParentCAId: 999,
		Algorithm:  crypts.AlgECDSA,
		CommonName: "Orphan CA",
	})
	assert.ErrorIs(t, err, models.ErrUnknownCA)
}

func TestIssueCARevokedParent(t *testing.T) {
	s, _ := newTestStore(t)
	root := issueRoot(t, s)
	require.NoError(t, s.RevokeCA(root.Id, "key_compromise"))

	_, err := s.IssueCA(CARequest{
		ParentCAId: root.Id,
		Algorithm:  crypts.AlgECDSA,
		CommonName: "Child of revoked",
	})
	assert.ErrorIs(t, err, models.ErrRevokedCA)
}

func TestIssueCAExpiredParent(t *testing.T) {
	s, db := newTestStore(t)
	root := issueRoot(t, s)
	db.MustExec("UPDATE ca_certs SET cert_expire_time = '2000-01-01T00:00:00Z' WHERE id = ?", root.Id)

	_, err := s.IssueCA(CARequest{
		ParentCAId: root.Id,
		Algorithm:  crypts.AlgECDSA,
		CommonName: "Child of expired",
	})
	assert.ErrorIs(t, err, models.ErrRevokedCA)
}

func TestIssueCertificateGeneratedKey(t *testing.T) {
	s, _ := newTestStore(t)
	root := issueRoot(t, s)

	issued, err := s.IssueCertificate(CertRequest{
		CAId:        root.Id,
		CommonName:  "Alice Example",
		Email:       "alice@example.com",
		GenerateKey: true,
		Algorithm:   crypts.AlgECDSA,
		TTL:         365,
	})
	require.NoError(t, err)

	cert := issued.Cert
	assert.EqualValues(t, 2, cert.SerialNumber)
	assert.Equal(t, models.CertStatusActive, cert.CertStatus)
	assert.Len(t, cert.Fingerprint, 64)
	assert.NotEmpty(t, cert.PrivateKey, "sealed key stored")
	assert.NotEmpty(t, issued.PrivateKeyPEM, "plaintext key returned once")

	// The sealed key opens back to the same public key.
	key, err := s.CertificateKey(cert)
	require.NoError(t, err)
	pub, err := crypts.ParsePublicKeyPEM([]byte(cert.PublicKey))
	require.NoError(t, err)
	assert.Equal(t, pub, key.Public())
}

func TestIssueCertificateBYOK(t *testing.T) {
	s, _ := newTestStore(t)
	root := issueRoot(t, s)

	subjectKey, err := crypts.GenerateKeyPair(crypts.AlgECDSA, 0)
	require.NoError(t, err)
	pubPEM, err := crypts.MarshalPublicKeyPEM(subjectKey.Public())
	require.NoError(t, err)

	issued, err := s.IssueCertificate(CertRequest{
		CAId:         root.Id,
		CommonName:   "Bob Example",
		Email:        "bob@example.com",
		PublicKeyPEM: string(pubPEM),
		TTL:          365,
	})
	require.NoError(t, err)
	assert.Empty(t, issued.Cert.PrivateKey, "no key stored for BYOK")
	assert.Empty(t, issued.PrivateKeyPEM)

	fetched, err := s.GetCertificateByFingerprint(issued.Cert.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, issued.Cert.Id, fetched.Id)
}

func TestIssueCertificateSerialMonotonic(t *testing.T) {
	s, _ := newTestStore(t)
	root := issueRoot(t, s)

	var serials []int64
	for i := 0; i < 3; i++ {
		issued, err := s.IssueCertificate(CertRequest{
			CAId:        root.Id,
			CommonName:  "Serial Holder",
			GenerateKey: true,
			Algorithm:   crypts.AlgECDSA,
		})
		require.NoError(t, err)
		serials = append(serials, issued.Cert.SerialNumber)
	}
	assert.Equal(t, []int64{2, 3, 4}, serials)
}

func TestIssueCertificateIssuerNotActive(t *testing.T) {
	s, _ := newTestStore(t)
	root := issueRoot(t, s)
	require.NoError(t, s.RevokeCA(root.Id, "superseded"))

	_, err := s.IssueCertificate(CertRequest{
		CAId:        root.Id,
		CommonName:  "Too Late",
		GenerateKey: true,
		Algorithm:   crypts.AlgECDSA,
	})
	assert.ErrorIs(t, err, models.ErrIssuerNotActive)
}

func TestIssueCertificateNoSubjectKey(t *testing.T) {
	s, _ := newTestStore(t)
	root := issueRoot(t, s)

	_, err := s.IssueCertificate(CertRequest{
		CAId:       root.Id,
		CommonName: "Keyless",
	})
	assert.Error(t, err)
}

func TestRevokeCertificateIrreversible(t *testing.T) {
	s, _ := newTestStore(t)
	root := issueRoot(t, s)
	issued, err := s.IssueCertificate(CertRequest{
		CAId:        root.Id,
		CommonName:  "Revocable",
		GenerateKey: true,
		Algorithm:   crypts.AlgECDSA,
	})
	require.NoError(t, err)

	require.NoError(t, s.RevokeCertificate(issued.Cert.Id, "key_compromise"))
	first, err := s.GetCertificate(issued.Cert.Id)
	require.NoError(t, err)
	assert.Equal(t, models.CertStatusRevoked, first.CertStatus)
	assert.NotEmpty(t, first.DataRevoke)

	// Re-revoking keeps the original timestamp and reason.
	require.NoError(t, s.RevokeCertificate(issued.Cert.Id, "superseded"))
	second, err := s.GetCertificate(issued.Cert.Id)
	require.NoError(t, err)
	assert.Equal(t, first.DataRevoke, second.DataRevoke)
	assert.Equal(t, "key_compromise", second.ReasonRevoke)
}

func TestRevokeUnknown(t *testing.T) {
	s, _ := newTestStore(t)
	assert.ErrorIs(t, s.RevokeCA(42, "x"), models.ErrUnknownCA)
	assert.ErrorIs(t, s.RevokeCertificate(42, "x"), models.ErrUnknownCertificate)
}
