package workflow

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type SignatoryInput struct {
	UserId     string `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Company    string `json:"company"`
	Role       string `json:"role"`
	OrderIndex int    `json:"order_index"`
}

type CreateRequestInput struct {
	ContractId   string           `json:"contract_id"`
	Title        string           `json:"title"`
	Message      string           `json:"message"`
	SigningOrder string           `json:"signing_order"`
	DocumentHash string           `json:"document_hash"` // supplied by the document store
	ExpiresAt    string           `json:"expires_at"`
	CreatedBy    string           `json:"created_by"`
	IPAddress    string           `json:"-"`
	UserAgent    string           `json:"-"`
	Signatories  []SignatoryInput `json:"signatories"`
}

// CreateRequest persists a draft request with its signatories and freezes
// the document hash. Signatories stay editable until Send.
func (c *Coordinator) CreateRequest(in CreateRequestInput) (*models.SignatureRequestData, error) {
	if in.SigningOrder != models.OrderSequential && in.SigningOrder != models.OrderParallel {
		return nil, fmt.Errorf("unknown signing order: %q", in.SigningOrder)
	}
	if len(in.Signatories) == 0 {
		return nil, errors.New("at least one signatory is required")
	}
	if in.DocumentHash == "" {
		return nil, errors.New("document hash is required")
	}
	if in.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, in.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("invalid expires_at: %w", err)
		}
		// Normalized to UTC so expiry comparisons stay lexicographic.
		in.ExpiresAt = t.UTC().Format(time.RFC3339)
	}
	seen := map[int]bool{}
	for _, s := range in.Signatories {
		if seen[s.OrderIndex] {
			return nil, models.ErrAmbiguousOrder
		}
		seen[s.OrderIndex] = true
	}

	tx, err := c.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	nowStr := time.Now().UTC().Format(time.RFC3339)
	req := &models.SignatureRequestData{
		Id:           uuid.New().String(),
		ContractId:   in.ContractId,
		Title:        in.Title,
		Message:      in.Message,
		SigningOrder: in.SigningOrder,
		DocumentHash: in.DocumentHash,
		Status:       models.RequestDraft,
		ExpiresAt:    in.ExpiresAt,
		CreatedBy:    in.CreatedBy,
		CreateTime:   nowStr,
		UpdateTime:   nowStr,
		Version:      1,
	}
	_, err = tx.Exec(`INSERT INTO signature_requests
		(id, contract_id, title, message, signing_order, document_hash, status,
		 expires_at, completed_at, created_by, create_time, update_time, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?, 1)`,
		req.Id, req.ContractId, req.Title, req.Message, req.SigningOrder, req.DocumentHash,
		req.Status, req.ExpiresAt, req.CreatedBy, req.CreateTime, req.UpdateTime)
	if err != nil {
		return nil, err
	}

	for _, s := range in.Signatories {
		_, err = tx.Exec(`INSERT INTO signatories
			(id, request_id, user_id, email, name, company, role, order_index, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), req.Id, s.UserId, s.Email, s.Name, s.Company, s.Role,
			s.OrderIndex, models.SignatoryPending)
		if err != nil {
			return nil, err
		}
	}

	data, _ := json.Marshal(map[string]any{
		"title":         in.Title,
		"signing_order": in.SigningOrder,
		"signatories":   len(in.Signatories),
		"document_hash": in.DocumentHash,
	})
	if err := c.log.Append(tx, &models.SignatureEventData{
		RequestId:  req.Id,
		EventType:  models.EventCreated,
		EventData:  string(data),
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
		CreateTime: nowStr,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	slog.Info("signature request created", "request_id", req.Id, "contract_id", in.ContractId,
		"signing_order", in.SigningOrder, "signatories", len(in.Signatories))
	return req, nil
}

// Send transitions draft to pending and delivers turns: the lowest order
// index for sequential requests, everyone for parallel ones.
func (c *Coordinator) Send(requestID string) error {
	tx, err := c.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	req, err := requestTx(tx, requestID)
	if err != nil {
		return err
	}
	if req.Status != models.RequestDraft {
		if req.Status == models.RequestCompleted {
			return models.ErrRequestAlreadyCompleted
		}
		return models.ErrRequestNotDraft
	}

	all, err := signatoriesTx(tx, req.Id)
	if err != nil {
		return err
	}

	nowStr := time.Now().UTC().Format(time.RFC3339)
	transitioned := []models.SignatoryData{}
	for i, s := range all {
		if req.SigningOrder == models.OrderSequential && i > 0 {
			break
		}
		if _, err := tx.Exec(`UPDATE signatories SET status = ?, sent_at = ? WHERE id = ?`,
			models.SignatorySent, nowStr, s.Id); err != nil {
			return err
		}
		transitioned = append(transitioned, s)
	}

	if err := bumpRequest(tx, req, models.RequestPending, req.CompletedAt); err != nil {
		return err
	}

	for _, s := range transitioned {
		if err := c.log.Append(tx, &models.SignatureEventData{
			RequestId:   req.Id,
			SignatoryId: s.Id,
			EventType:   models.EventSent,
			CreateTime:  nowStr,
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("signature request sent", "request_id", req.Id, "delivered", len(transitioned))
	return nil
}

// RecordView marks a signatory as having viewed the document. Idempotent
// once viewed or signed; viewing carries no turn-order constraint.
func (c *Coordinator) RecordView(signatoryID, ip, ua string) error {
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
		// Viewing after signing is a no-op, not a violation.
		if errors.Is(err, models.ErrAlreadyResolved) && sig.Status == models.SignatorySigned {
			return nil
		}
		return err
	}
	if sig.Status == models.SignatoryViewed {
		return nil
	}

	nowStr := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`UPDATE signatories SET status = ?, viewed_at = ? WHERE id = ?`,
		models.SignatoryViewed, nowStr, sig.Id); err != nil {
		return err
	}

	// First signatory action moves the request out of pending.
	newStatus := req.Status
	if req.Status == models.RequestPending {
		newStatus = models.RequestInProgress
	}
	if err := bumpRequest(tx, req, newStatus, req.CompletedAt); err != nil {
		return err
	}

	if err := c.log.Append(tx, &models.SignatureEventData{
		RequestId:   req.Id,
		SignatoryId: sig.Id,
		EventType:   models.EventViewed,
		IPAddress:   ip,
		UserAgent:   ua,
		CreateTime:  nowStr,
	}); err != nil {
		return err
	}

	return tx.Commit()
}

// Cancel is owner-only and permitted from any non-terminal state.
func (c *Coordinator) Cancel(requestID, actor, ip, ua string) error {
	tx, err := c.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	req, err := requestTx(tx, requestID)
	if err != nil {
		return err
	}
	if actor != req.CreatedBy {
		return models.ErrNotOwner
	}
	if req.Status == models.RequestCompleted {
		return models.ErrRequestAlreadyCompleted
	}
	if models.RequestTerminal(req.Status) {
		return models.ErrRequestClosed
	}

	nowStr := time.Now().UTC().Format(time.RFC3339)
	if err := bumpRequest(tx, req, models.RequestCancelled, req.CompletedAt); err != nil {
		return err
	}

	data, _ := json.Marshal(map[string]any{"actor": actor})
	if err := c.log.Append(tx, &models.SignatureEventData{
		RequestId:  req.Id,
		EventType:  models.EventCancelled,
		EventData:  string(data),
		IPAddress:  ip,
		UserAgent:  ua,
		CreateTime: nowStr,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("signature request cancelled", "request_id", req.Id, "actor", actor)
	return nil
}

// GetRequest loads a request with its signatories in order.
func (c *Coordinator) GetRequest(requestID string) (*models.SignatureRequestData, []models.SignatoryData, error) {
	req := &models.SignatureRequestData{}
	err := c.db.Get(req, "SELECT * FROM signature_requests WHERE id = ?", requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, models.ErrUnknownRequest
	}
	if err != nil {
		return nil, nil, err
	}
	sigs := []models.SignatoryData{}
	if err := c.db.Select(&sigs, "SELECT * FROM signatories WHERE request_id = ? ORDER BY order_index", requestID); err != nil {
		return nil, nil, err
	}
	return req, sigs, nil
}

// ListRequests returns requests filtered by status, newest first.
func (c *Coordinator) ListRequests(status string) ([]models.SignatureRequestData, error) {
	reqs := []models.SignatureRequestData{}
	if status != "" {
		return reqs, c.db.Select(&reqs,
			"SELECT * FROM signature_requests WHERE status = ? ORDER BY create_time DESC", status)
	}
	return reqs, c.db.Select(&reqs, "SELECT * FROM signature_requests ORDER BY create_time DESC")
}

func requestTx(tx *sqlx.Tx, id string) (*models.SignatureRequestData, error) {
	req := &models.SignatureRequestData{}
	err := tx.Get(req, "SELECT * FROM signature_requests WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUnknownRequest
	}
	return req, err
}

func signatoryTx(tx *sqlx.Tx, id string) (*models.SignatoryData, error) {
	sig := &models.SignatoryData{}
	err := tx.Get(sig, "SELECT * FROM signatories WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUnknownSignatory
	}
	return sig, err
}

func signatoriesTx(tx *sqlx.Tx, requestID string) ([]models.SignatoryData, error) {
	sigs := []models.SignatoryData{}
	err := tx.Select(&sigs, "SELECT * FROM signatories WHERE request_id = ? ORDER BY order_index", requestID)
	return sigs, err
}

// bumpRequest applies the aggregate status with the optimistic version
// check. A concurrent writer that committed first makes this fail with
// ErrConcurrentUpdate, so a racing final signer can never double-fire the
// completed transition.
func bumpRequest(tx *sqlx.Tx, req *models.SignatureRequestData, status, completedAt string) error {
	res, err := tx.Exec(`UPDATE signature_requests SET
		status = ?, completed_at = ?, update_time = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		status, completedAt, time.Now().UTC().Format(time.RFC3339), req.Id, req.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrConcurrentUpdate
	}
	return nil
}
