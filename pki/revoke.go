package pki

import (
	"log/slog"
	"time"

	"github.com/dpxrk/pactwise-signflow/models"
)

// RevokeCA marks a CA revoked. Irreversible; revoking an already revoked
// CA keeps the original timestamp and reason. Not retroactive: chains it
// anchored fail validation from now on, recorded signatures stand.
func (s *Store) RevokeCA(id int64, reason string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status int
	if err := tx.Get(&status, "SELECT cert_status FROM ca_certs WHERE id = ?", id); err != nil {
		return models.ErrUnknownCA
	}
	if status == models.CertStatusRevoked {
		return tx.Commit()
	}

	_, err = tx.Exec(`UPDATE ca_certs SET
		cert_status = ?,
		data_revoke = ?,
		reason_revoke = ?
		WHERE id = ?`, models.CertStatusRevoked, time.Now().UTC().Format(time.RFC3339), reason, id)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("CA revoked", "ca_id", id, "reason", reason)
	return nil
}

// RevokeCertificate marks a user certificate revoked. Same semantics as
// RevokeCA.
func (s *Store) RevokeCertificate(id int64, reason string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status int
	if err := tx.Get(&status, "SELECT cert_status FROM user_certs WHERE id = ?", id); err != nil {
		return models.ErrUnknownCertificate
	}
	if status == models.CertStatusRevoked {
		return tx.Commit()
	}

	_, err = tx.Exec(`UPDATE user_certs SET
		cert_status = ?,
		data_revoke = ?,
		reason_revoke = ?
		WHERE id = ?`, models.CertStatusRevoked, time.Now().UTC().Format(time.RFC3339), reason, id)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("certificate revoked", "cert_id", id, "reason", reason)
	return nil
}
