// Package audit is the append-only ledger of signature workflow events.
// Appends ride the transaction of the state change they record, so a
// transition and its audit row commit or fail together. Nothing in this
// package, or anywhere else, updates or deletes a written row.
package audit

import (
	"time"

	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Log struct {
	db *sqlx.DB
}

func NewLog(db *sqlx.DB) *Log {
	return &Log{db: db}
}

// Append writes one event on the given execer (usually the caller's
// transaction). If the append fails, the caller must fail its transition.
func (l *Log) Append(ext sqlx.Execer, e *models.SignatureEventData) error {
	if e.Id == "" {
		e.Id = uuid.New().String()
	}
	if e.CreateTime == "" {
		e.CreateTime = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := ext.Exec(`INSERT INTO signature_events
		(id, request_id, signatory_id, event_type, event_data, ip_address, user_agent, create_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Id, e.RequestId, e.SignatoryId, e.EventType, e.EventData, e.IPAddress, e.UserAgent, e.CreateTime)
	return err
}

// AppendNow writes one event in its own transaction, outside any state
// change. Used for signature_rejected records.
func (l *Log) AppendNow(e *models.SignatureEventData) error {
	return l.Append(l.db, e)
}

// Replay returns the full event history of a request in commit order, for
// compliance export and history reconstruction.
func (l *Log) Replay(requestID string) ([]models.SignatureEventData, error) {
	events := []models.SignatureEventData{}
	err := l.db.Select(&events, `SELECT * FROM signature_events
		WHERE request_id = ? ORDER BY create_time, seq`, requestID)
	return events, err
}

// CountByType returns how many events of one type a request holds.
func (l *Log) CountByType(requestID, eventType string) (int, error) {
	var n int
	err := l.db.Get(&n, `SELECT COUNT(*) FROM signature_events
		WHERE request_id = ? AND event_type = ?`, requestID, eventType)
	return n, err
}
