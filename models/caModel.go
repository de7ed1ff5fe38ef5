package models

// Certificate authority statuses
// 0 - active, 1 - expired, 2 - revoked
const (
	CertStatusActive  = 0
	CertStatusExpired = 1
	CertStatusRevoked = 2
)

// CA types
const (
	TypeCARoot = "Root"
	TypeCASub  = "Sub"
)

type CAData struct {
	Id               int64  `json:"id" db:"id"`
	Enterprise       string `json:"Enterprise" db:"enterprise"`
	Name             string `json:"Name" db:"name"`
	TypeCA           string `json:"TypeCA" db:"type_ca"` // Root, Sub
	ParentCAId       int64  `json:"ParentCAId" db:"parent_ca_id"` // 0 for a root CA
	Algorithm        string `json:"Algorithm" db:"algorithm"`
	KeyLength        int    `json:"KeyLength" db:"key_length"`
	TTL              int    `json:"TTL" db:"ttl"`
	CommonName       string `json:"CommonName" db:"common_name"`
	CountryName      string `json:"CountryName" db:"country_name"`
	StateProvince    string `json:"StateProvince" db:"state_province"`
	LocalityName     string `json:"LocalityName" db:"locality_name"`
	Organization     string `json:"Organization" db:"organization"`
	OrganizationUnit string `json:"OrganizationUnit" db:"organization_unit"`
	Email            string `json:"Email" db:"email"`
	PublicKey        string `json:"public_key" db:"public_key"`   // certificate PEM
	PrivateKey       string `json:"-" db:"private_key"`           // AES-GCM sealed key PEM
	SerialNumber     int64  `json:"serial_number" db:"serial_number"`
	NextSerial       int64  `json:"-" db:"next_serial"`
	CRLURL           string `json:"crl_url" db:"crl_url"`
	CertCreateTime   string `json:"cert_create_time" db:"cert_create_time"`
	CertExpireTime   string `json:"cert_expire_time" db:"cert_expire_time"`
	DataRevoke       string `json:"data_revoke" db:"data_revoke"`
	ReasonRevoke     string `json:"ReasonRevoke" db:"reason_revoke"`
	CertStatus       int    `json:"cert_status" db:"cert_status"` // 0 - active, 1 - expired, 2 - revoked
}

func (ca *CAData) IsRoot() bool {
	return ca.TypeCA == TypeCARoot
}

var SchemaCA = `
CREATE TABLE IF NOT EXISTS ca_certs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	enterprise TEXT,
	name TEXT,
	type_ca TEXT,
	parent_ca_id INTEGER DEFAULT 0,
	algorithm TEXT,
	key_length INTEGER,
	ttl INTEGER,
	common_name TEXT,
	country_name TEXT,
	state_province TEXT,
	locality_name TEXT,
	organization TEXT,
	organization_unit TEXT,
	email TEXT,
	public_key TEXT,
	private_key TEXT,
	serial_number INTEGER,
	next_serial INTEGER DEFAULT 1,
	crl_url TEXT,
	cert_create_time TEXT,
	cert_expire_time TEXT,
	data_revoke TEXT,
	reason_revoke TEXT,
	cert_status INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ca_issuer_serial
	ON ca_certs(parent_ca_id, serial_number) WHERE type_ca = 'Sub';`
