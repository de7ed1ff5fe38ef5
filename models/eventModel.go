package models

// Audit event types (closed set)
const (
	EventCreated           = "created"
	EventSent              = "sent"
	EventViewed            = "viewed"
	EventSigned            = "signed"
	EventDeclined          = "declined"
	EventExpired           = "expired"
	EventCancelled         = "cancelled"
	EventCompleted         = "completed"
	EventSignatureRejected = "signature_rejected"
)

// SignatureEventData is one append-only audit ledger row. There is no
// update or delete path for these rows anywhere in the codebase.
type SignatureEventData struct {
	Seq         int64  `json:"-" db:"seq"`
	Id          string `json:"id" db:"id"`
	RequestId   string `json:"request_id" db:"request_id"`
	SignatoryId string `json:"signatory_id" db:"signatory_id"` // empty for request-level events
	EventType   string `json:"event_type" db:"event_type"`
	EventData   string `json:"event_data" db:"event_data"` // JSON blob
	IPAddress   string `json:"ip_address" db:"ip_address"`
	UserAgent   string `json:"user_agent" db:"user_agent"`
	CreateTime  string `json:"create_time" db:"create_time"`
}

var SchemaSignatureEvents = `
CREATE TABLE IF NOT EXISTS signature_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT UNIQUE NOT NULL,
	request_id TEXT NOT NULL,
	signatory_id TEXT DEFAULT '',
	event_type TEXT NOT NULL,
	event_data TEXT DEFAULT '',
	ip_address TEXT DEFAULT '',
	user_agent TEXT DEFAULT '',
	create_time TEXT NOT NULL,
	FOREIGN KEY (request_id) REFERENCES signature_requests(id)
);
CREATE INDEX IF NOT EXISTS idx_signature_events_request ON signature_events(request_id);`
