package pki

import (
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dpxrk/pactwise-signflow/crypts"
	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/jmoiron/sqlx"
)

// ChainResult is the outcome of a chain validation. Reason names the first
// failing link, root to leaf.
type ChainResult struct {
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
	FailedCAId int64  `json:"failed_ca_id,omitempty"`
}

func invalid(reason string, caID int64) *ChainResult {
	return &ChainResult{Valid: false, Reason: reason, FailedCAId: caID}
}

// ValidateChain walks the certificate's issuer chain up to a root and
// validates every link as of now.
func (s *Store) ValidateChain(certID int64) (*ChainResult, error) {
	return s.ValidateChainTx(s.db, certID, time.Now().UTC())
}

// ValidateChainTx runs chain validation on the given queryer, so a signing
// transaction observes certificate status with its own read snapshot. A
// revocation committed before this read is always observed.
func (s *Store) ValidateChainTx(q sqlx.Queryer, certID int64, now time.Time) (*ChainResult, error) {
	cert := &models.UserCertData{}
	err := sqlx.Get(q, cert, "SELECT * FROM user_certs WHERE id = ?", certID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUnknownCertificate
	}
	if err != nil {
		return nil, err
	}

	// Collect leaf's ancestry bottom-up. The walk is iterative with a hop
	// bound and a visited set: a parent_ca_id cycle fails closed instead of
	// looping.
	chain := []*models.CAData{}
	visited := map[int64]bool{}
	nextID := cert.CAId
	for {
		if len(chain) >= MaxChainHops {
			return invalid("chain exceeds maximum depth", nextID), nil
		}
		if visited[nextID] {
			return invalid("parent reference cycle", nextID), nil
		}
		visited[nextID] = true

		ca := &models.CAData{}
		err := sqlx.Get(q, ca, "SELECT * FROM ca_certs WHERE id = ?", nextID)
		if errors.Is(err, sql.ErrNoRows) {
			return invalid("issuer not found", nextID), nil
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, ca)
		if ca.IsRoot() {
			break
		}
		if ca.ParentCAId == 0 {
			return invalid("chain does not terminate at a root", ca.Id), nil
		}
		nextID = ca.ParentCAId
	}

	// Validate root to leaf so a revoked root terminates early.
	var parent *x509.Certificate
	for i := len(chain) - 1; i >= 0; i-- {
		ca := chain[i]
		if ca.CertStatus == models.CertStatusRevoked {
			return invalid("ca revoked", ca.Id), nil
		}
		if reason, ok := withinWindow(ca.CertCreateTime, ca.CertExpireTime, now); !ok {
			return invalid("ca "+reason, ca.Id), nil
		}
		caCert, err := crypts.ParseCertificatePEM([]byte(ca.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("parse CA %d certificate: %w", ca.Id, err)
		}
		if parent != nil {
			if err := caCert.CheckSignatureFrom(parent); err != nil {
				return invalid("issuer signature mismatch", ca.Id), nil
			}
		}
		parent = caCert
	}

	// Leaf checks last: status, window, then signature continuity against
	// the issuing CA.
	if cert.CertStatus == models.CertStatusRevoked {
		return invalid("certificate revoked", 0), nil
	}
	if reason, ok := withinWindow(cert.CertCreateTime, cert.CertExpireTime, now); !ok {
		return invalid("certificate "+reason, 0), nil
	}
	leaf, err := crypts.ParseCertificatePEM([]byte(cert.Certificate))
	if err != nil {
		return nil, fmt.Errorf("parse certificate %d: %w", cert.Id, err)
	}
	if err := leaf.CheckSignatureFrom(parent); err != nil {
		return invalid("issuer signature mismatch", cert.CAId), nil
	}

	return &ChainResult{Valid: true}, nil
}

func withinWindow(createTime, expireTime string, now time.Time) (string, bool) {
	notBefore, err := time.Parse(time.RFC3339, createTime)
	if err != nil {
		return "validity window unreadable", false
	}
	notAfter, err := time.Parse(time.RFC3339, expireTime)
	if err != nil {
		return "validity window unreadable", false
	}
	if now.Before(notBefore) {
		return "not yet valid", false
	}
	if now.After(notAfter) {
		return "expired", false
	}
	return "", true
}
