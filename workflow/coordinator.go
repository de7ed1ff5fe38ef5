// Package workflow drives signature requests through their state machine.
// The Coordinator serializes every mutating operation on a request through
// one transaction guarded by an optimistic version check, and is the only
// component that talks to both the certificate store and the request state
// within a single logical operation.
package workflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dpxrk/pactwise-signflow/audit"
	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/dpxrk/pactwise-signflow/pki"
	"github.com/jmoiron/sqlx"
)

// Decline policies
const (
	DeclineHalt   = "halt"   // a single decline declines the whole request
	DeclineQuorum = "quorum" // decliner drops out of the required set
)

type Config struct {
	DeclinePolicy            string
	RequireUniformSignatures bool
}

type Coordinator struct {
	db    *sqlx.DB
	store *pki.Store
	log   *audit.Log
	cfg   Config
}

func New(db *sqlx.DB, store *pki.Store, log *audit.Log, cfg Config) *Coordinator {
	if cfg.DeclinePolicy == "" {
		cfg.DeclinePolicy = DeclineHalt
	}
	return &Coordinator{db: db, store: store, log: log, cfg: cfg}
}

// SignaturePayload is stored verbatim on the signatory row.
type SignaturePayload struct {
	Type      string `json:"type"` // draw, type, upload, certificate
	Data      string `json:"data"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// Sign records a signature. All preconditions must hold or the call fails
// without mutating request or signatory state; temporal rejections leave a
// signature_rejected audit row in their own transaction.
func (c *Coordinator) Sign(signatoryID string, payload SignaturePayload, assertedHash string, certificateID int64) error {
	tx, err := c.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	sig, err := signatoryTx(tx, signatoryID)
	if err != nil {
		return err
	}
	req, err := requestTx(tx, sig.RequestId)
	if err != nil {
		return err
	}

	if err := guardSignable(req, sig); err != nil {
		return err
	}

	all, err := signatoriesTx(tx, req.Id)
	if err != nil {
		return err
	}

	if req.SigningOrder == models.OrderSequential {
		for _, other := range all {
			if other.OrderIndex >= sig.OrderIndex || other.Status == models.SignatorySigned {
				continue
			}
			// Under quorum a decliner has left the required set, so a
			// declined earlier turn does not block.
			if c.cfg.DeclinePolicy == DeclineQuorum && other.Status == models.SignatoryDeclined {
				continue
			}
			return models.ErrOutOfOrder
		}
	}

	if sig.Status != models.SignatorySent && sig.Status != models.SignatoryViewed {
		return models.ErrNotSent
	}

	// The document changed since the request was created: the request must
	// be recreated, never silently re-hashed.
	if assertedHash != req.DocumentHash {
		tx.Rollback()
		c.rejectSignature(req.Id, sig.Id, "document hash mismatch", payload)
		return models.ErrDocumentHashMismatch
	}

	if certificateID != 0 {
		res, err := c.store.ValidateChainTx(tx, certificateID, now)
		if err != nil {
			return err
		}
		if !res.Valid {
			tx.Rollback()
			c.rejectSignature(req.Id, sig.Id, res.Reason, payload)
			return fmt.Errorf("%w: %s", models.ErrInvalidCertificate, res.Reason)
		}
	}

	if c.cfg.RequireUniformSignatures {
		for _, other := range all {
			if other.Status == models.SignatorySigned && (other.CertificateId == 0) != (certificateID == 0) {
				return models.ErrMixedSignatureTypes
			}
		}
	}

	nowStr := now.Format(time.RFC3339)
	_, err = tx.Exec(`UPDATE signatories SET
		status = ?, signed_at = ?, signature_type = ?, signature_data = ?,
		signature_ip = ?, signature_ua = ?, certificate_id = ?
		WHERE id = ?`,
		models.SignatorySigned, nowStr, payload.Type, payload.Data,
		payload.IPAddress, payload.UserAgent, certificateID, sig.Id)
	if err != nil {
		return err
	}

	// Advance the turn before recomputing the aggregate.
	var advanced *models.SignatoryData
	if req.SigningOrder == models.OrderSequential {
		for i := range all {
			if all[i].Id != sig.Id && all[i].Status == models.SignatoryPending {
				advanced = &all[i]
				break
			}
		}
		if advanced != nil {
			if _, err := tx.Exec(`UPDATE signatories SET status = ?, sent_at = ? WHERE id = ?`,
				models.SignatorySent, nowStr, advanced.Id); err != nil {
				return err
			}
		}
	}

	// Tagged-variant recomputation of the aggregate status from signatory
	// rows, inside the same transaction.
	remaining := 0
	for _, other := range all {
		if other.Id == sig.Id || !other.Required() {
			continue
		}
		if other.Status == models.SignatorySigned {
			continue
		}
		if c.cfg.DeclinePolicy == DeclineQuorum && other.Status == models.SignatoryDeclined {
			continue
		}
		remaining++
	}

	newStatus := models.RequestInProgress
	completedAt := req.CompletedAt
	if remaining == 0 {
		newStatus = models.RequestCompleted
		completedAt = nowStr
	}
	if err := bumpRequest(tx, req, newStatus, completedAt); err != nil {
		return err
	}

	data, _ := json.Marshal(map[string]any{
		"signature_type": payload.Type,
		"certificate_id": certificateID,
		"order_index":    sig.OrderIndex,
	})
	if err := c.log.Append(tx, &models.SignatureEventData{
		RequestId:   req.Id,
		SignatoryId: sig.Id,
		EventType:   models.EventSigned,
		EventData:   string(data),
		IPAddress:   payload.IPAddress,
		UserAgent:   payload.UserAgent,
		CreateTime:  nowStr,
	}); err != nil {
		return err
	}
	if advanced != nil {
		if err := c.log.Append(tx, &models.SignatureEventData{
			RequestId:   req.Id,
			SignatoryId: advanced.Id,
			EventType:   models.EventSent,
			CreateTime:  nowStr,
		}); err != nil {
			return err
		}
	}
	if newStatus == models.RequestCompleted {
		if err := c.log.Append(tx, &models.SignatureEventData{
			RequestId:  req.Id,
			EventType:  models.EventCompleted,
			CreateTime: nowStr,
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("signatory signed", "request_id", req.Id, "signatory_id", sig.Id,
		"certificate_id", certificateID, "request_status", newStatus)
	return nil
}

// Decline records a refusal to sign. Under the halt policy the whole
// request declines immediately; under quorum the decliner leaves the
// required set and the request may still complete.
func (c *Coordinator) Decline(signatoryID, reason, ip, ua string) error {
	tx, err := c.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sig, err := signatoryTx(tx, signatoryID)
	if err != nil {
		return err
	}
	req, err := requestTx(tx, sig.RequestId)
	if err != nil {
		return err
	}
	if err := guardSignable(req, sig); err != nil {
		return err
	}

	nowStr := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.Exec(`UPDATE signatories SET status = ?, declined_at = ?, decline_reason = ? WHERE id = ?`,
		models.SignatoryDeclined, nowStr, reason, sig.Id)
	if err != nil {
		return err
	}

	newStatus := req.Status
	completedAt := req.CompletedAt
	var advanced *models.SignatoryData
	if c.cfg.DeclinePolicy == DeclineQuorum {
		all, err := signatoriesTx(tx, req.Id)
		if err != nil {
			return err
		}

		// The decliner's successor gets its turn, same as after a
		// signature; otherwise a sequential request wedges.
		if req.SigningOrder == models.OrderSequential {
			for i := range all {
				if all[i].Id != sig.Id && all[i].Status == models.SignatoryPending {
					advanced = &all[i]
					break
				}
			}
			if advanced != nil {
				if _, err := tx.Exec(`UPDATE signatories SET status = ?, sent_at = ? WHERE id = ?`,
					models.SignatorySent, nowStr, advanced.Id); err != nil {
					return err
				}
			}
		}

		remaining := 0
		signed := 0
		for _, other := range all {
			if other.Id == sig.Id || !other.Required() {
				continue
			}
			if other.Status == models.SignatorySigned {
				signed++
				continue
			}
			if other.Status == models.SignatoryDeclined {
				continue
			}
			remaining++
		}
		if remaining == 0 {
			// A request nobody signed ends declined, never completed.
			if signed > 0 {
				newStatus = models.RequestCompleted
				completedAt = nowStr
			} else {
				newStatus = models.RequestDeclined
			}
		}
	} else {
		newStatus = models.RequestDeclined
	}
	if err := bumpRequest(tx, req, newStatus, completedAt); err != nil {
		return err
	}

	data, _ := json.Marshal(map[string]any{"reason": reason, "request_status": newStatus})
	if err := c.log.Append(tx, &models.SignatureEventData{
		RequestId:   req.Id,
		SignatoryId: sig.Id,
		EventType:   models.EventDeclined,
		EventData:   string(data),
		IPAddress:   ip,
		UserAgent:   ua,
		CreateTime:  nowStr,
	}); err != nil {
		return err
	}
	if advanced != nil {
		if err := c.log.Append(tx, &models.SignatureEventData{
			RequestId:   req.Id,
			SignatoryId: advanced.Id,
			EventType:   models.EventSent,
			CreateTime:  nowStr,
		}); err != nil {
			return err
		}
	}
	if newStatus == models.RequestCompleted {
		if err := c.log.Append(tx, &models.SignatureEventData{
			RequestId:  req.Id,
			EventType:  models.EventCompleted,
			CreateTime: nowStr,
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("signatory declined", "request_id", req.Id, "signatory_id", sig.Id, "request_status", newStatus)
	return nil
}

// rejectSignature records a failed signature attempt. State is untouched,
// compliance still sees the attempt.
func (c *Coordinator) rejectSignature(requestID, signatoryID, reason string, payload SignaturePayload) {
	data, _ := json.Marshal(map[string]any{"reason": reason, "signature_type": payload.Type})
	err := c.log.AppendNow(&models.SignatureEventData{
		RequestId:   requestID,
		SignatoryId: signatoryID,
		EventType:   models.EventSignatureRejected,
		EventData:   string(data),
		IPAddress:   payload.IPAddress,
		UserAgent:   payload.UserAgent,
	})
	if err != nil {
		slog.Error("failed to record signature rejection", "request_id", requestID, "error", err)
	}
}

// guardSignable applies preconditions 1 and 2 shared by Sign and Decline.
func guardSignable(req *models.SignatureRequestData, sig *models.SignatoryData) error {
	switch req.Status {
	case models.RequestCompleted:
		return models.ErrRequestAlreadyCompleted
	case models.RequestExpired, models.RequestDeclined, models.RequestCancelled:
		return models.ErrRequestClosed
	case models.RequestDraft:
		return models.ErrNotSent
	}
	if sig.Status == models.SignatorySigned || sig.Status == models.SignatoryDeclined {
		return models.ErrAlreadyResolved
	}
	return nil
}
