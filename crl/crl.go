package crl

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/dpxrk/pactwise-signflow/pki"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/viper"
)

// StartCRLGeneration regenerates the per-CA revocation lists on a fixed
// interval, writing them under crl.path.
func StartCRLGeneration(db *sqlx.DB, store *pki.Store, interval time.Duration) {
	if err := GenerateAll(db, store); err != nil {
		slog.Error("initial CRL generation failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := GenerateAll(db, store); err != nil {
			slog.Error("CRL generation failed", "error", err)
		}
	}
}

// GenerateAll writes a CRL file for every non-revoked CA.
func GenerateAll(db *sqlx.DB, store *pki.Store) error {
	cas := []models.CAData{}
	if err := db.Select(&cas, "SELECT * FROM ca_certs WHERE cert_status != ?", models.CertStatusRevoked); err != nil {
		return err
	}

	dir := viper.GetString("crl.path")
	if dir == "" {
		dir = "./crl_data"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for i := range cas {
		der, err := GenerateForCA(db, store, &cas[i])
		if err != nil {
			slog.Error("CRL generation for CA failed", "ca_id", cas[i].Id, "error", err)
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("ca_%d.crl", cas[i].Id))
		pemBytes := pem.EncodeToMemory(&pem.Block{Type: "X509 CRL", Bytes: der})
		if err := os.WriteFile(path, pemBytes, 0644); err != nil {
			slog.Error("CRL write failed", "ca_id", cas[i].Id, "path", path, "error", err)
		}
	}
	return nil
}

// GenerateForCA builds a DER revocation list of the CA's revoked
// certificates, signed with the CA key.
func GenerateForCA(db *sqlx.DB, store *pki.Store, ca *models.CAData) ([]byte, error) {
	revoked := []models.UserCertData{}
	err := db.Select(&revoked,
		"SELECT * FROM user_certs WHERE ca_id = ? AND cert_status = ?", ca.Id, models.CertStatusRevoked)
	if err != nil {
		return nil, err
	}

	entries := make([]x509.RevocationListEntry, 0, len(revoked))
	for _, cert := range revoked {
		revokedAt, err := time.Parse(time.RFC3339, cert.DataRevoke)
		if err != nil {
			revokedAt = time.Now().UTC()
		}
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   big.NewInt(cert.SerialNumber),
			RevocationTime: revokedAt,
			ReasonCode:     revocationReason(cert.ReasonRevoke),
		})
	}

	caCert, caKey, err := store.CAKeyPair(ca)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updateHours := viper.GetInt("crl.update_hours")
	if updateHours <= 0 {
		updateHours = 24
	}
	template := x509.RevocationList{
		Number:                    big.NewInt(now.Unix()),
		ThisUpdate:                now,
		NextUpdate:                now.Add(time.Duration(updateHours) * time.Hour),
		RevokedCertificateEntries: entries,
		Issuer:                    pkix.Name{CommonName: ca.CommonName},
	}

	return x509.CreateRevocationList(rand.Reader, &template, caCert, caKey)
}

// revocationReason maps a textual revocation reason to the RFC 5280
// CRLReason code.
// 0: unspecified, 1: keyCompromise, 2: cACompromise, 3: affiliationChanged,
// 4: superseded, 5: cessationOfOperation, 6: certificateHold,
// 9: privilegeWithdrawn, 10: aACompromise
func revocationReason(reason string) int {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "", "unspecified":
		return 0
	case "keycompromise", "key_compromise":
		return 1
	case "cacompromise", "ca_compromise":
		return 2
	case "affiliationchanged", "affiliation_changed":
		return 3
	case "superseded":
		return 4
	case "cessationofoperation", "cessation_of_operation":
		return 5
	case "certificatehold", "certificate_hold":
		return 6
	case "privilegewithdrawn", "privilege_withdrawn":
		return 9
	case "aacompromise", "aa_compromise":
		return 10
	default:
		return 0
	}
}
