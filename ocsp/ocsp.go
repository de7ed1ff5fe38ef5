package ocsp

import (
	"bytes"
	"crypto"
	"crypto/x509/pkix"
	"encoding/asn1"
	"log/slog"
	"time"

	"github.com/dpxrk/pactwise-signflow/crypts"
	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/dpxrk/pactwise-signflow/pki"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/ocsp"
)

// Responder answers OCSP requests for user certificates, signing responses
// with the issuing CA key.
type Responder struct {
	db    *sqlx.DB
	store *pki.Store
}

func NewResponder(db *sqlx.DB, store *pki.Store) *Responder {
	return &Responder{db: db, store: store}
}

// HandleRequest parses a DER OCSP request and returns a signed DER
// response.
func (r *Responder) HandleRequest(body []byte) ([]byte, error) {
	req, err := ocsp.ParseRequest(body)
	if err != nil {
		return nil, err
	}

	cert, ca, err := r.findCert(req)
	if err != nil {
		return nil, err
	}

	caCert, caKey, err := r.store.CAKeyPair(ca)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	template := ocsp.Response{
		SerialNumber: req.SerialNumber,
		ThisUpdate:   now,
		NextUpdate:   now.Add(time.Hour),
	}

	switch {
	case cert.CertStatus == models.CertStatusRevoked:
		template.Status = ocsp.Revoked
		template.RevocationReason = ocsp.Unspecified
		if revokedAt, err := time.Parse(time.RFC3339, cert.DataRevoke); err == nil {
			template.RevokedAt = revokedAt
		} else {
			template.RevokedAt = now
		}
	case expired(cert, now):
		// Expired is not revoked; the response stays Good and the client
		// rejects on the validity window.
		template.Status = ocsp.Good
	default:
		template.Status = ocsp.Good
	}

	resp, err := ocsp.CreateResponse(caCert, caCert, template, caKey)
	if err != nil {
		return nil, err
	}

	slog.Debug("OCSP response", "serial", req.SerialNumber.Int64(), "status", template.Status)
	return resp, nil
}

// findCert resolves the requested certificate. Serials are per-CA counters,
// so the bare serial is ambiguous across issuers; the candidate whose
// issuing CA matches the request's issuer key hash wins.
func (r *Responder) findCert(req *ocsp.Request) (*models.UserCertData, *models.CAData, error) {
	candidates := []models.UserCertData{}
	err := r.db.Select(&candidates, "SELECT * FROM user_certs WHERE serial_number = ?", req.SerialNumber.Int64())
	if err != nil {
		return nil, nil, err
	}

	for i := range candidates {
		ca, err := r.store.GetCA(candidates[i].CAId)
		if err != nil {
			continue
		}
		keyHash, err := issuerKeyHash(ca, req.HashAlgorithm)
		if err != nil {
			continue
		}
		if bytes.Equal(keyHash, req.IssuerKeyHash) {
			return &candidates[i], ca, nil
		}
	}
	return nil, nil, models.ErrUnknownCertificate
}

// issuerKeyHash computes the RFC 6960 issuerKeyHash of a CA: the hash of
// the subject public key BIT STRING, without tag, length and unused bits.
func issuerKeyHash(ca *models.CAData, hash crypto.Hash) ([]byte, error) {
	caCert, err := crypts.ParseCertificatePEM([]byte(ca.PublicKey))
	if err != nil {
		return nil, err
	}

	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(caCert.RawSubjectPublicKeyInfo, &spki); err != nil {
		return nil, err
	}

	h := hash.New()
	h.Write(spki.PublicKey.RightAlign())
	return h.Sum(nil), nil
}

func expired(cert *models.UserCertData, now time.Time) bool {
	expire, err := time.Parse(time.RFC3339, cert.CertExpireTime)
	if err != nil {
		return false
	}
	return now.After(expire)
}
