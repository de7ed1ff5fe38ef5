package pki

import (
	"testing"
	"time"

	"github.com/dpxrk/pactwise-signflow/crypts"
	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildHierarchy issues root -> sub -> leaf and returns all three.
func buildHierarchy(t *testing.T, s *Store) (*models.CAData, *models.CAData, *models.UserCertData) {
	t.Helper()
	root := issueRoot(t, s)
	sub, err := s.IssueCA(CARequest{
		ParentCAId: root.Id,
		Name:       "Acme Issuing",
		Algorithm:  crypts.AlgECDSA,
		TTL:        1825,
		CommonName: "Acme Issuing CA",
	})
	require.NoError(t, err)
	issued, err := s.IssueCertificate(CertRequest{
		CAId:        sub.Id,
		CommonName:  "Carol Example",
		Email:       "carol@example.com",
		GenerateKey: true,
		Algorithm:   crypts.AlgECDSA,
		TTL:         365,
	})
	require.NoError(t, err)
	return root, sub, issued.Cert
}

func TestValidateChainValid(t *testing.T) {
	s, _ := newTestStore(t)
	_, _, leaf := buildHierarchy(t, s)

	res, err := s.ValidateChain(leaf.Id)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Reason)
}

func TestValidateChainUnknownCert(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.ValidateChain(12345)
	assert.ErrorIs(t, err, models.ErrUnknownCertificate)
}

func TestValidateChainRevokedRoot(t *testing.T) {
	s, _ := newTestStore(t)
	root, _, leaf := buildHierarchy(t, s)
	require.NoError(t, s.RevokeCA(root.Id, "key_compromise"))

	res, err := s.ValidateChain(leaf.Id)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "ca revoked", res.Reason)
	assert.Equal(t, root.Id, res.FailedCAId)
}

func TestValidateChainRevokedSub(t *testing.T) {
	s, _ := newTestStore(t)
	_, sub, leaf := buildHierarchy(t, s)
	require.NoError(t, s.RevokeCA(sub.Id, "cessation_of_operation"))

	res, err := s.ValidateChain(leaf.Id)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "ca revoked", res.Reason)
	assert.Equal(t, sub.Id, res.FailedCAId)
}

func TestValidateChainRevokedLeaf(t *testing.T) {
	s, _ := newTestStore(t)
	_, _, leaf := buildHierarchy(t, s)
	require.NoError(t, s.RevokeCertificate(leaf.Id, "key_compromise"))

	res, err := s.ValidateChain(leaf.Id)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "certificate revoked", res.Reason)
}

func TestValidateChainExpiredLink(t *testing.T) {
	s, db := newTestStore(t)
	_, sub, leaf := buildHierarchy(t, s)
	db.MustExec("UPDATE ca_certs SET cert_expire_time = '2001-01-01T00:00:00Z' WHERE id = ?", sub.Id)

	res, err := s.ValidateChain(leaf.Id)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "ca expired", res.Reason)
	assert.Equal(t, sub.Id, res.FailedCAId)
}

func TestValidateChainExpiredLeaf(t *testing.T) {
	s, db := newTestStore(t)
	_, _, leaf := buildHierarchy(t, s)
	db.MustExec("UPDATE user_certs SET cert_expire_time = '2001-01-01T00:00:00Z' WHERE id = ?", leaf.Id)

	res, err := s.ValidateChain(leaf.Id)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "certificate expired", res.Reason)
}

func TestValidateChainMissingIssuer(t *testing.T) {
	s, db := newTestStore(t)
	_, sub, leaf := buildHierarchy(t, s)
	db.MustExec("UPDATE ca_certs SET parent_ca_id = 777 WHERE id = ?", sub.Id)

	res, err := s.ValidateChain(leaf.Id)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "issuer not found", res.Reason)
}

func TestValidateChainCycle(t *testing.T) {
	s, db := newTestStore(t)
	root, sub, leaf := buildHierarchy(t, s)
	// root -> sub -> root: the walk must fail closed, never loop.
	db.MustExec("UPDATE ca_certs SET type_ca = ?, parent_ca_id = ? WHERE id = ?",
		models.TypeCASub, sub.Id, root.Id)

	res, err := s.ValidateChain(leaf.Id)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "parent reference cycle", res.Reason)
}

func TestValidateChainTamperedSignature(t *testing.T) {
	s, db := newTestStore(t)
	root, _, leaf := buildHierarchy(t, s)

	// Swap the root certificate for a fresh self-signed one: the sub was not
	// signed by it, so continuity breaks at the sub link.
	stranger := issueRootNamed(t, s, "Stranger Root")
	db.MustExec("UPDATE ca_certs SET public_key = ? WHERE id = ?", stranger.PublicKey, root.Id)

	res, err := s.ValidateChain(leaf.Id)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "issuer signature mismatch", res.Reason)
}

func issueRootNamed(t *testing.T, s *Store, cn string) *models.CAData {
	t.Helper()
	ca, err := s.IssueCA(CARequest{
		Name:       cn,
		Algorithm:  crypts.AlgECDSA,
		TTL:        3650,
		CommonName: cn,
	})
	require.NoError(t, err)
	return ca
}

func TestValidateChainTxSeesOwnSnapshot(t *testing.T) {
	s, db := newTestStore(t)
	_, _, leaf := buildHierarchy(t, s)

	// A revocation committed before the read is observed through any queryer,
	// plain handle included.
	require.NoError(t, s.RevokeCertificate(leaf.Id, "superseded"))

	var q sqlx.Queryer = db
	res, err := s.ValidateChainTx(q, leaf.Id, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, res.Valid)
}
