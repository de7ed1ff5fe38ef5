package workflow

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dpxrk/pactwise-signflow/models"
)

// ExpirationSweep transitions every overdue request to expired. Signed
// signatories are not reverted. Safe to run repeatedly: a request already
// expired is skipped, so no duplicate expired events appear.
func (c *Coordinator) ExpirationSweep() error {
	nowStr := time.Now().UTC().Format(time.RFC3339)

	ids := []string{}
	err := c.db.Select(&ids, `SELECT id FROM signature_requests
		WHERE expires_at != '' AND expires_at < ?
		AND status IN (?, ?, ?)`,
		nowStr, models.RequestDraft, models.RequestPending, models.RequestInProgress)
	if err != nil {
		return err
	}

	var firstErr error
	for _, id := range ids {
		if err := c.expireRequest(id, nowStr); err != nil {
			slog.Error("expiration sweep failed for request", "request_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(ids) > 0 {
		slog.Info("expiration sweep", "expired", len(ids))
	}
	return firstErr
}

// expireRequest holds only this request's own transaction, so the sweep
// never blocks unrelated signing traffic.
func (c *Coordinator) expireRequest(id, nowStr string) error {
	tx, err := c.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	req, err := requestTx(tx, id)
	if err != nil {
		return err
	}
	// Re-check under the transaction; another sweep or a signer may have
	// moved the request already.
	if models.RequestTerminal(req.Status) {
		return nil
	}
	if req.ExpiresAt == "" || req.ExpiresAt >= nowStr {
		return nil
	}

	if err := bumpRequest(tx, req, models.RequestExpired, req.CompletedAt); err != nil {
		// A concurrent final signature wins the race; the request is no
		// longer ours to expire.
		if errors.Is(err, models.ErrConcurrentUpdate) {
			return nil
		}
		return err
	}

	if err := c.log.Append(tx, &models.SignatureEventData{
		RequestId:  req.Id,
		EventType:  models.EventExpired,
		CreateTime: nowStr,
	}); err != nil {
		return err
	}

	return tx.Commit()
}
