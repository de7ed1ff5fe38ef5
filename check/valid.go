package check

import (
	"log/slog"
	"time"

	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/jmoiron/sqlx"
)

// CheckValidCerts periodically persists the computed active→expired
// transition for CA and user certificates. Expiry is always recomputed from
// the validity window at validation time; this sweep only keeps the stored
// status column in step for listings and CRL/OCSP answers.
func CheckValidCerts(db *sqlx.DB, interval time.Duration) {
	checkCerts(db)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		checkCerts(db)
	}
}

func checkCerts(db *sqlx.DB) {
	nowStr := time.Now().UTC().Format(time.RFC3339)

	for _, table := range []string{"ca_certs", "user_certs"} {
		res, err := db.Exec(
			`UPDATE `+table+` SET cert_status = ? WHERE cert_status = ? AND cert_expire_time < ?`,
			models.CertStatusExpired, models.CertStatusActive, nowStr)
		if err != nil {
			slog.Error("certificate validity check failed", "table", table, "error", err)
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			slog.Info("certificates marked expired", "table", table, "count", n)
		}
	}
}
