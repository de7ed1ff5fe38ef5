package models

type UserCertData struct {
	Id               int64  `json:"id" db:"id"`
	CAId             int64  `json:"ca_id" db:"ca_id"`
	UserId           string `json:"user_id" db:"user_id"`
	CommonName       string `json:"CommonName" db:"common_name"`
	CountryName      string `json:"CountryName" db:"country_name"`
	StateProvince    string `json:"StateProvince" db:"state_province"`
	LocalityName     string `json:"LocalityName" db:"locality_name"`
	Organization     string `json:"Organization" db:"organization"`
	OrganizationUnit string `json:"OrganizationUnit" db:"organization_unit"`
	Email            string `json:"Email" db:"email"`
	SerialNumber     int64  `json:"serial_number" db:"serial_number"`
	PublicKey        string `json:"public_key" db:"public_key"`   // subject public key PEM
	Certificate      string `json:"certificate" db:"certificate"` // certificate PEM
	PrivateKey       string `json:"-" db:"private_key"`           // sealed, empty for BYOK/CSR issuance
	Fingerprint      string `json:"fingerprint" db:"fingerprint"` // hex SHA-256 of DER bytes
	KeyUsage         string `json:"key_usage" db:"key_usage"`     // comma separated
	ExtKeyUsage      string `json:"ext_key_usage" db:"ext_key_usage"`
	CertCreateTime   string `json:"cert_create_time" db:"cert_create_time"`
	CertExpireTime   string `json:"cert_expire_time" db:"cert_expire_time"`
	DataRevoke       string `json:"data_revoke" db:"data_revoke"`
	ReasonRevoke     string `json:"ReasonRevoke" db:"reason_revoke"`
	CertStatus       int    `json:"cert_status" db:"cert_status"` // 0 - active, 1 - expired, 2 - revoked
}

var SchemaUserCerts = `
CREATE TABLE IF NOT EXISTS user_certs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ca_id INTEGER NOT NULL,
	user_id TEXT,
	common_name TEXT,
	country_name TEXT,
	state_province TEXT,
	locality_name TEXT,
	organization TEXT,
	organization_unit TEXT,
	email TEXT,
	serial_number INTEGER,
	public_key TEXT,
	certificate TEXT,
	private_key TEXT,
	fingerprint TEXT,
	key_usage TEXT,
	ext_key_usage TEXT,
	cert_create_time TEXT,
	cert_expire_time TEXT,
	data_revoke TEXT,
	reason_revoke TEXT,
	cert_status INTEGER,
	FOREIGN KEY (ca_id) REFERENCES ca_certs(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_user_certs_serial ON user_certs(ca_id, serial_number);
CREATE UNIQUE INDEX IF NOT EXISTS idx_user_certs_fingerprint ON user_certs(fingerprint);`
