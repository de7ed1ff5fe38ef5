package models

// Signatory statuses (signed and declined are terminal)
const (
	SignatoryPending  = "pending"
	SignatorySent     = "sent"
	SignatoryViewed   = "viewed"
	SignatorySigned   = "signed"
	SignatoryDeclined = "declined"
)

// Signature payload types
const (
	SignatureDraw        = "draw"
	SignatureType        = "type"
	SignatureUpload      = "upload"
	SignatureCertificate = "certificate"
)

// RoleObserver marks a signatory whose signature is not required for the
// request to complete.
const RoleObserver = "observer"

type SignatoryData struct {
	Id            string `json:"id" db:"id"`
	RequestId     string `json:"request_id" db:"request_id"`
	UserId        string `json:"user_id" db:"user_id"` // empty for external signatories
	Email         string `json:"email" db:"email"`
	Name          string `json:"name" db:"name"`
	Company       string `json:"company" db:"company"`
	Role          string `json:"role" db:"role"`
	OrderIndex    int    `json:"order_index" db:"order_index"`
	Status        string `json:"status" db:"status"`
	SentAt        string `json:"sent_at" db:"sent_at"`
	ViewedAt      string `json:"viewed_at" db:"viewed_at"`
	SignedAt      string `json:"signed_at" db:"signed_at"`
	DeclinedAt    string `json:"declined_at" db:"declined_at"`
	DeclineReason string `json:"decline_reason" db:"decline_reason"`
	SignatureType string `json:"signature_type" db:"signature_type"` // draw, type, upload, certificate
	SignatureData string `json:"-" db:"signature_data"`              // stored verbatim
	SignatureIP   string `json:"signature_ip" db:"signature_ip"`
	SignatureUA   string `json:"signature_ua" db:"signature_ua"`
	CertificateId int64  `json:"certificate_id" db:"certificate_id"` // 0 = none
}

// Required reports whether this signatory must sign before the request
// can complete.
func (s *SignatoryData) Required() bool {
	return s.Role != RoleObserver
}

var SchemaSignatories = `
CREATE TABLE IF NOT EXISTS signatories (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	user_id TEXT,
	email TEXT,
	name TEXT,
	company TEXT,
	role TEXT,
	order_index INTEGER NOT NULL,
	status TEXT NOT NULL,
	sent_at TEXT DEFAULT '',
	viewed_at TEXT DEFAULT '',
	signed_at TEXT DEFAULT '',
	declined_at TEXT DEFAULT '',
	decline_reason TEXT DEFAULT '',
	signature_type TEXT DEFAULT '',
	signature_data TEXT DEFAULT '',
	signature_ip TEXT DEFAULT '',
	signature_ua TEXT DEFAULT '',
	certificate_id INTEGER DEFAULT 0,
	FOREIGN KEY (request_id) REFERENCES signature_requests(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_signatories_order ON signatories(request_id, order_index);`
