package models

// Signature request statuses
const (
	RequestDraft      = "draft"
	RequestPending    = "pending"
	RequestInProgress = "in_progress"
	RequestCompleted  = "completed"
	RequestExpired    = "expired"
	RequestDeclined   = "declined"
	RequestCancelled  = "cancelled"
)

// Signing orders
const (
	OrderSequential = "sequential"
	OrderParallel   = "parallel"
)

// RequestTerminal reports whether no further signatory mutations are
// accepted on a request in the given status.
func RequestTerminal(status string) bool {
	switch status {
	case RequestCompleted, RequestExpired, RequestDeclined, RequestCancelled:
		return true
	}
	return false
}

type SignatureRequestData struct {
	Id           string `json:"id" db:"id"`
	ContractId   string `json:"contract_id" db:"contract_id"`
	Title        string `json:"title" db:"title"`
	Message      string `json:"message" db:"message"`
	SigningOrder string `json:"signing_order" db:"signing_order"` // sequential, parallel
	DocumentHash string `json:"document_hash" db:"document_hash"` // frozen at creation
	Status       string `json:"status" db:"status"`
	ExpiresAt    string `json:"expires_at" db:"expires_at"`     // RFC3339, empty = no expiry
	CompletedAt  string `json:"completed_at" db:"completed_at"` // set exactly once
	CreatedBy    string `json:"created_by" db:"created_by"`
	CreateTime   string `json:"create_time" db:"create_time"`
	UpdateTime   string `json:"update_time" db:"update_time"`
	Version      int64  `json:"-" db:"version"` // optimistic concurrency
}

var SchemaSignatureRequests = `
CREATE TABLE IF NOT EXISTS signature_requests (
	id TEXT PRIMARY KEY,
	contract_id TEXT,
	title TEXT,
	message TEXT,
	signing_order TEXT NOT NULL,
	document_hash TEXT NOT NULL,
	status TEXT NOT NULL,
	expires_at TEXT DEFAULT '',
	completed_at TEXT DEFAULT '',
	created_by TEXT,
	create_time TEXT,
	update_time TEXT,
	version INTEGER NOT NULL DEFAULT 1
);`
