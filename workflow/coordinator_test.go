package workflow

import (
	"testing"

	"github.com/dpxrk/pactwise-signflow/crypts"
	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/dpxrk/pactwise-signflow/pki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// issueSigningCert builds root -> issuing CA -> user certificate and
// returns the leaf id.
func issueSigningCert(t *testing.T, store *pki.Store) int64 {
	t.Helper()
	root, err := store.IssueCA(pki.CARequest{
		Name:       "Pactwise Root",
		Algorithm:  crypts.AlgECDSA,
		TTL:        3650,
		CommonName: "Pactwise Root CA",
	})
	require.NoError(t, err)
	sub, err := store.IssueCA(pki.CARequest{
		ParentCAId: root.Id,
		Name:       "Pactwise Issuing",
		Algorithm:  crypts.AlgECDSA,
		TTL:        1825,
		CommonName: "Pactwise Issuing CA",
	})
	require.NoError(t, err)
	issued, err := store.IssueCertificate(pki.CertRequest{
		CAId:        sub.Id,
		CommonName:  "Alice Example",
		Email:       "a@example.com",
		GenerateKey: true,
		Algorithm:   crypts.AlgECDSA,
		TTL:         365,
	})
	require.NoError(t, err)
	return issued.Cert.Id
}

func TestCertificateBackedSigning(t *testing.T) {
	c, _, store, _ := newTestCoordinator(t, Config{})
	certID := issueSigningCert(t, store)

	req, err := c.CreateRequest(twoSignerInput(models.OrderParallel))
	require.NoError(t, err)
	require.NoError(t, c.Send(req.Id))
	_, sigs, err := c.GetRequest(req.Id)
	require.NoError(t, err)

	err = c.Sign(sigs[0].Id, SignaturePayload{Type: models.SignatureCertificate, Data: "sig-bytes"}, testHash, certID)
	require.NoError(t, err)

	_, sigs, err = c.GetRequest(req.Id)
	require.NoError(t, err)
	assert.Equal(t, models.SignatorySigned, sigs[0].Status)
	assert.Equal(t, certID, sigs[0].CertificateId)
}

func TestSignWithUnknownCertificate(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, Config{})
	req, err := c.CreateRequest(twoSignerInput(models.OrderParallel))
	require.NoError(t, err)
	require.NoError(t, c.Send(req.Id))
	_, sigs, err := c.GetRequest(req.Id)
	require.NoError(t, err)

	err = c.Sign(sigs[0].Id, SignaturePayload{Type: models.SignatureCertificate}, testHash, 9999)
	assert.ErrorIs(t, err, models.ErrUnknownCertificate)
}

// Revocation is not retroactive: a signature recorded while the chain was
// valid stands, later attempts with the same certificate fail.
func TestRevocationNotRetroactive(t *testing.T) {
	c, _, store, log := newTestCoordinator(t, Config{})
	certID := issueSigningCert(t, store)

	req, err := c.CreateRequest(twoSignerInput(models.OrderParallel))
	require.NoError(t, err)
	require.NoError(t, c.Send(req.Id))
	_, sigs, err := c.GetRequest(req.Id)
	require.NoError(t, err)

	require.NoError(t, c.Sign(sigs[0].Id,
		SignaturePayload{Type: models.SignatureCertificate, Data: "a"}, testHash, certID))

	require.NoError(t, store.RevokeCertificate(certID, "key_compromise"))

	err = c.Sign(sigs[1].Id,
		SignaturePayload{Type: models.SignatureCertificate, Data: "b"}, testHash, certID)
	assert.ErrorIs(t, err, models.ErrInvalidCertificate)

	loaded, sigs, err := c.GetRequest(req.Id)
	require.NoError(t, err)
	assert.Equal(t, models.SignatorySigned, sigs[0].Status, "earlier signature stands")
	assert.Equal(t, models.SignatorySent, sigs[1].Status)
	assert.Equal(t, models.RequestInProgress, loaded.Status)

	n, err := log.CountByType(req.Id, models.EventSignatureRejected)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRevokedIssuerBlocksSigning(t *testing.T) {
	c, _, store, _ := newTestCoordinator(t, Config{})
	certID := issueSigningCert(t, store)

	cert, err := store.GetCertificate(certID)
	require.NoError(t, err)
	require.NoError(t, store.RevokeCA(cert.CAId, "cessation_of_operation"))

	req, err := c.CreateRequest(twoSignerInput(models.OrderParallel))
	require.NoError(t, err)
	require.NoError(t, c.Send(req.Id))
	_, sigs, err := c.GetRequest(req.Id)
	require.NoError(t, err)

	err = c.Sign(sigs[0].Id, SignaturePayload{Type: models.SignatureCertificate}, testHash, certID)
	assert.ErrorIs(t, err, models.ErrInvalidCertificate)
}

func TestRequireUniformSignatures(t *testing.T) {
	c, _, store, _ := newTestCoordinator(t, Config{RequireUniformSignatures: true})
	certID := issueSigningCert(t, store)

	req, err := c.CreateRequest(twoSignerInput(models.OrderParallel))
	require.NoError(t, err)
	require.NoError(t, c.Send(req.Id))
	_, sigs, err := c.GetRequest(req.Id)
	require.NoError(t, err)

	require.NoError(t, c.Sign(sigs[0].Id,
		SignaturePayload{Type: models.SignatureCertificate, Data: "a"}, testHash, certID))

	err = c.Sign(sigs[1].Id, SignaturePayload{Type: models.SignatureDraw, Data: "b"}, testHash, 0)
	assert.ErrorIs(t, err, models.ErrMixedSignatureTypes)
}

func TestMixedSignaturesAllowedByDefault(t *testing.T) {
	c, _, store, _ := newTestCoordinator(t, Config{})
	certID := issueSigningCert(t, store)

	req, err := c.CreateRequest(twoSignerInput(models.OrderParallel))
	require.NoError(t, err)
	require.NoError(t, c.Send(req.Id))
	_, sigs, err := c.GetRequest(req.Id)
	require.NoError(t, err)

	require.NoError(t, c.Sign(sigs[0].Id,
		SignaturePayload{Type: models.SignatureCertificate, Data: "a"}, testHash, certID))
	require.NoError(t, c.Sign(sigs[1].Id,
		SignaturePayload{Type: models.SignatureDraw, Data: "b"}, testHash, 0))

	loaded, _, err := c.GetRequest(req.Id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCompleted, loaded.Status)
}
