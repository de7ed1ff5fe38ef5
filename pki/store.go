package pki

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/dpxrk/pactwise-signflow/crypts"
	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/jmoiron/sqlx"
)

// Store owns the certificate_authorities and user_certs relations. It is
// the only writer of certificate and CA status.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// CARequest describes a CA to issue. ParentCAId 0 means a self-signed root.
type CARequest struct {
	ParentCAId       int64  `json:"ParentCAId"`
	Enterprise       string `json:"Enterprise"`
	Name             string `json:"Name"`
	Algorithm        string `json:"Algorithm"`
	KeyLength        int    `json:"KeyLength"`
	TTL              int    `json:"TTL"` // days
	CommonName       string `json:"CommonName"`
	CountryName      string `json:"CountryName"`
	StateProvince    string `json:"StateProvince"`
	LocalityName     string `json:"LocalityName"`
	Organization     string `json:"Organization"`
	OrganizationUnit string `json:"OrganizationUnit"`
	Email            string `json:"Email"`
	CRLURL           string `json:"crl_url"`
}

// CertRequest describes a user certificate to issue. Exactly one of
// PublicKeyPEM, CSRPEM or GenerateKey supplies the subject key.
type CertRequest struct {
	CAId             int64    `json:"ca_id"`
	UserId           string   `json:"user_id"`
	CommonName       string   `json:"CommonName"`
	CountryName      string   `json:"CountryName"`
	StateProvince    string   `json:"StateProvince"`
	LocalityName     string   `json:"LocalityName"`
	Organization     string   `json:"Organization"`
	OrganizationUnit string   `json:"OrganizationUnit"`
	Email            string   `json:"Email"`
	PublicKeyPEM     string   `json:"public_key"` // bring-your-own-key
	CSRPEM           string   `json:"csr"`
	GenerateKey      bool     `json:"generate_key"`
	Algorithm        string   `json:"Algorithm"`
	KeyLength        int      `json:"KeyLength"`
	TTL              int      `json:"TTL"` // days
	KeyUsage         []string `json:"key_usage"`
	ExtKeyUsage      []string `json:"ext_key_usage"`
}

// IssuedCert pairs the stored record with the one-time plaintext key PEM
// when the store generated the key pair.
type IssuedCert struct {
	Cert          *models.UserCertData `json:"certificate"`
	PrivateKeyPEM string               `json:"private_key,omitempty"`
}

// MaxChainHops bounds chain walks; deeper hierarchies fail closed.
const MaxChainHops = 16

// IssueCA creates a root or subordinate CA. A non-root issuer must exist
// and be active and unexpired at creation time.
func (s *Store) IssueCA(req CARequest) (*models.CAData, error) {
	if req.Algorithm == "" {
		req.Algorithm = crypts.AlgRSA
	}
	if req.TTL <= 0 {
		req.TTL = 3650
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var parent *models.CAData
	var parentCert *x509.Certificate
	var parentKey crypto.Signer
	var serial int64

	if req.ParentCAId != 0 {
		parent = &models.CAData{}
		err = tx.Get(parent, "SELECT * FROM ca_certs WHERE id = ?", req.ParentCAId)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUnknownCA
		}
		if err != nil {
			return nil, err
		}
		if !caUsable(parent, now) {
			return nil, models.ErrRevokedCA
		}
		parentCert, parentKey, err = s.openCA(parent)
		if err != nil {
			return nil, err
		}
		serial, err = nextSerial(tx, parent.Id)
		if err != nil {
			return nil, err
		}
	} else {
		// A root signs itself before its own row exists: serial 1 in its
		// own space, counter starts at 2 for its children.
		serial = 1
	}

	key, err := crypts.GenerateKeyPair(req.Algorithm, req.KeyLength)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      subjectName(req.CommonName, req.CountryName, req.StateProvince, req.LocalityName, req.Organization, req.OrganizationUnit),
		NotBefore:    now,
		NotAfter:     now.AddDate(0, 0, req.TTL),
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	if req.CRLURL != "" {
		template.CRLDistributionPoints = []string{req.CRLURL}
	}

	signerCert := &template
	signerKey := key
	typeCA := models.TypeCARoot
	if parent != nil {
		signerCert = parentCert
		signerKey = parentKey
		typeCA = models.TypeCASub
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, &template, signerCert, key.Public(), signerKey)
	if err != nil {
		return nil, err
	}

	sealedKey, err := sealKey(key)
	if err != nil {
		return nil, err
	}

	ca := &models.CAData{
		Enterprise:       req.Enterprise,
		Name:             req.Name,
		TypeCA:           typeCA,
		ParentCAId:       req.ParentCAId,
		Algorithm:        req.Algorithm,
		KeyLength:        req.KeyLength,
		TTL:              req.TTL,
		CommonName:       req.CommonName,
		CountryName:      req.CountryName,
		StateProvince:    req.StateProvince,
		LocalityName:     req.LocalityName,
		Organization:     req.Organization,
		OrganizationUnit: req.OrganizationUnit,
		Email:            req.Email,
		PublicKey:        string(crypts.EncodeCertificatePEM(certBytes)),
		PrivateKey:       sealedKey,
		SerialNumber:     serial,
		NextSerial:       1,
		CRLURL:           req.CRLURL,
		CertCreateTime:   now.Format(time.RFC3339),
		CertExpireTime:   now.AddDate(0, 0, req.TTL).Format(time.RFC3339),
		CertStatus:       models.CertStatusActive,
	}
	if ca.IsRoot() {
		ca.NextSerial = 2
	}

	res, err := tx.Exec(`INSERT INTO ca_certs (
		enterprise, name, type_ca, parent_ca_id, algorithm, key_length, ttl,
		common_name, country_name, state_province, locality_name, organization, organization_unit, email,
		public_key, private_key, serial_number, next_serial, crl_url,
		cert_create_time, cert_expire_time, data_revoke, reason_revoke, cert_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', ?)`,
		ca.Enterprise, ca.Name, ca.TypeCA, ca.ParentCAId, ca.Algorithm, ca.KeyLength, ca.TTL,
		ca.CommonName, ca.CountryName, ca.StateProvince, ca.LocalityName, ca.Organization, ca.OrganizationUnit, ca.Email,
		ca.PublicKey, ca.PrivateKey, ca.SerialNumber, ca.NextSerial, ca.CRLURL,
		ca.CertCreateTime, ca.CertExpireTime, ca.CertStatus)
	if err != nil {
		return nil, err
	}
	ca.Id, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	slog.Info("CA issued", "ca_id", ca.Id, "type", ca.TypeCA, "parent_ca_id", ca.ParentCAId, "serial", serial)
	return ca, nil
}

// IssueCertificate issues a user certificate under an active CA.
func (s *Store) IssueCertificate(req CertRequest) (*IssuedCert, error) {
	if req.TTL <= 0 {
		req.TTL = 365
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	ca := &models.CAData{}
	err = tx.Get(ca, "SELECT * FROM ca_certs WHERE id = ?", req.CAId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUnknownCA
	}
	if err != nil {
		return nil, err
	}
	if !caUsable(ca, now) {
		return nil, models.ErrIssuerNotActive
	}

	caCert, caKey, err := s.openCA(ca)
	if err != nil {
		return nil, err
	}

	pub, privPEM, err := subjectKey(req)
	if err != nil {
		return nil, err
	}

	serial, err := nextSerial(tx, ca.Id)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      subjectName(req.CommonName, req.CountryName, req.StateProvince, req.LocalityName, req.Organization, req.OrganizationUnit),
		NotBefore:    now,
		NotAfter:     now.AddDate(0, 0, req.TTL),
		KeyUsage:     parseKeyUsage(req.KeyUsage),
		ExtKeyUsage:  parseExtKeyUsage(req.ExtKeyUsage),
		BasicConstraintsValid: true,
	}
	if req.Email != "" {
		template.EmailAddresses = []string{req.Email}
	}
	if ca.CRLURL != "" {
		template.CRLDistributionPoints = []string{ca.CRLURL}
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, &template, caCert, pub, caKey)
	if err != nil {
		return nil, err
	}

	fingerprint := crypts.Fingerprint(certBytes)
	var collisions int
	if err := tx.Get(&collisions, "SELECT COUNT(*) FROM user_certs WHERE fingerprint = ?", fingerprint); err != nil {
		return nil, err
	}
	if collisions != 0 {
		// Serials are instance-unique, so this cannot happen short of a
		// corrupted store. Fail hard.
		return nil, models.ErrFingerprintCollision
	}

	pubPEM, err := crypts.MarshalPublicKeyPEM(pub)
	if err != nil {
		return nil, err
	}

	sealed := ""
	if privPEM != "" {
		if sealed, err = sealPEM([]byte(privPEM)); err != nil {
			return nil, err
		}
	}

	cert := &models.UserCertData{
		CAId:             ca.Id,
		UserId:           req.UserId,
		CommonName:       req.CommonName,
		CountryName:      req.CountryName,
		StateProvince:    req.StateProvince,
		LocalityName:     req.LocalityName,
		Organization:     req.Organization,
		OrganizationUnit: req.OrganizationUnit,
		Email:            req.Email,
		SerialNumber:     serial,
		PublicKey:        string(pubPEM),
		Certificate:      string(crypts.EncodeCertificatePEM(certBytes)),
		PrivateKey:       sealed,
		Fingerprint:      fingerprint,
		KeyUsage:         strings.Join(req.KeyUsage, ","),
		ExtKeyUsage:      strings.Join(req.ExtKeyUsage, ","),
		CertCreateTime:   now.Format(time.RFC3339),
		CertExpireTime:   now.AddDate(0, 0, req.TTL).Format(time.RFC3339),
		CertStatus:       models.CertStatusActive,
	}

	res, err := tx.Exec(`INSERT INTO user_certs (
		ca_id, user_id, common_name, country_name, state_province, locality_name,
		organization, organization_unit, email, serial_number, public_key, certificate,
		private_key, fingerprint, key_usage, ext_key_usage,
		cert_create_time, cert_expire_time, data_revoke, reason_revoke, cert_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', ?)`,
		cert.CAId, cert.UserId, cert.CommonName, cert.CountryName, cert.StateProvince, cert.LocalityName,
		cert.Organization, cert.OrganizationUnit, cert.Email, cert.SerialNumber, cert.PublicKey, cert.Certificate,
		cert.PrivateKey, cert.Fingerprint, cert.KeyUsage, cert.ExtKeyUsage,
		cert.CertCreateTime, cert.CertExpireTime, cert.CertStatus)
	if err != nil {
		return nil, err
	}
	cert.Id, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	slog.Info("certificate issued", "cert_id", cert.Id, "ca_id", ca.Id, "serial", serial, "fingerprint", fingerprint)
	return &IssuedCert{Cert: cert, PrivateKeyPEM: privPEM}, nil
}

func (s *Store) GetCA(id int64) (*models.CAData, error) {
	ca := &models.CAData{}
	err := s.db.Get(ca, "SELECT * FROM ca_certs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUnknownCA
	}
	return ca, err
}

func (s *Store) ListCAs() ([]models.CAData, error) {
	cas := []models.CAData{}
	err := s.db.Select(&cas, "SELECT * FROM ca_certs ORDER BY id")
	return cas, err
}

func (s *Store) GetCertificate(id int64) (*models.UserCertData, error) {
	cert := &models.UserCertData{}
	err := s.db.Get(cert, "SELECT * FROM user_certs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUnknownCertificate
	}
	return cert, err
}

func (s *Store) GetCertificateByFingerprint(fp string) (*models.UserCertData, error) {
	cert := &models.UserCertData{}
	err := s.db.Get(cert, "SELECT * FROM user_certs WHERE fingerprint = ?", fp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUnknownCertificate
	}
	return cert, err
}

func (s *Store) ListCertificates(caID int64) ([]models.UserCertData, error) {
	certs := []models.UserCertData{}
	if caID != 0 {
		return certs, s.db.Select(&certs, "SELECT * FROM user_certs WHERE ca_id = ? ORDER BY id", caID)
	}
	return certs, s.db.Select(&certs, "SELECT * FROM user_certs ORDER BY id")
}

// CertificateKey unseals the stored private key of a certificate. Only
// available when the store generated the key pair at issuance.
func (s *Store) CertificateKey(cert *models.UserCertData) (crypto.Signer, error) {
	if cert.PrivateKey == "" {
		return nil, errors.New("certificate has no stored private key")
	}
	return unsealKey(cert.PrivateKey)
}

// CAKeyPair opens the certificate and private key of a CA.
func (s *Store) CAKeyPair(ca *models.CAData) (*x509.Certificate, crypto.Signer, error) {
	return s.openCA(ca)
}

func (s *Store) openCA(ca *models.CAData) (*x509.Certificate, crypto.Signer, error) {
	cert, err := crypts.ParseCertificatePEM([]byte(ca.PublicKey))
	if err != nil {
		return nil, nil, fmt.Errorf("parse CA %d certificate: %w", ca.Id, err)
	}
	key, err := unsealKey(ca.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("unseal CA %d key: %w", ca.Id, err)
	}
	return cert, key, nil
}

// caUsable reports whether a CA may issue or anchor a chain right now.
func caUsable(ca *models.CAData, now time.Time) bool {
	if ca.CertStatus != models.CertStatusActive {
		return false
	}
	expire, err := time.Parse(time.RFC3339, ca.CertExpireTime)
	if err != nil {
		return false
	}
	return now.Before(expire)
}

// nextSerial draws one value from the issuing CA's monotonic counter. A
// single atomic statement, so two issuing transactions can never read the
// same counter value regardless of the backend's writer isolation.
func nextSerial(tx *sqlx.Tx, caID int64) (int64, error) {
	var serial int64
	err := tx.Get(&serial,
		"UPDATE ca_certs SET next_serial = next_serial + 1 WHERE id = ? RETURNING next_serial - 1", caID)
	return serial, err
}

func subjectName(cn, c, st, l, o, ou string) pkix.Name {
	name := pkix.Name{CommonName: cn}
	if c != "" {
		name.Country = []string{c}
	}
	if st != "" {
		name.Province = []string{st}
	}
	if l != "" {
		name.Locality = []string{l}
	}
	if o != "" {
		name.Organization = []string{o}
	}
	if ou != "" {
		name.OrganizationalUnit = []string{ou}
	}
	return name
}

// subjectKey resolves the subject public key from the request: CSR, raw
// public key, or a freshly generated pair.
func subjectKey(req CertRequest) (crypto.PublicKey, string, error) {
	switch {
	case req.CSRPEM != "":
		block, err := parseCSR(req.CSRPEM)
		if err != nil {
			return nil, "", err
		}
		return block.PublicKey, "", nil
	case req.PublicKeyPEM != "":
		pub, err := crypts.ParsePublicKeyPEM([]byte(req.PublicKeyPEM))
		if err != nil {
			return nil, "", err
		}
		return pub, "", nil
	case req.GenerateKey:
		alg := req.Algorithm
		if alg == "" {
			alg = crypts.AlgRSA
		}
		key, err := crypts.GenerateKeyPair(alg, req.KeyLength)
		if err != nil {
			return nil, "", err
		}
		pem, err := crypts.MarshalPrivateKeyPEM(key)
		if err != nil {
			return nil, "", err
		}
		return key.Public(), string(pem), nil
	default:
		return nil, "", errors.New("no public key, CSR or key generation requested")
	}
}

func parseCSR(csrPEM string) (*x509.CertificateRequest, error) {
	block, err := decodePEMBlock(csrPEM, "CERTIFICATE REQUEST")
	if err != nil {
		return nil, err
	}
	csr, err := x509.ParseCertificateRequest(block)
	if err != nil {
		return nil, err
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("CSR signature check failed: %w", err)
	}
	return csr, nil
}

func parseKeyUsage(usages []string) x509.KeyUsage {
	if len(usages) == 0 {
		return x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment
	}
	var ku x509.KeyUsage
	for _, u := range usages {
		switch strings.ToLower(strings.TrimSpace(u)) {
		case "digital_signature":
			ku |= x509.KeyUsageDigitalSignature
		case "content_commitment", "non_repudiation":
			ku |= x509.KeyUsageContentCommitment
		case "key_encipherment":
			ku |= x509.KeyUsageKeyEncipherment
		case "data_encipherment":
			ku |= x509.KeyUsageDataEncipherment
		case "key_agreement":
			ku |= x509.KeyUsageKeyAgreement
		}
	}
	return ku
}

func parseExtKeyUsage(usages []string) []x509.ExtKeyUsage {
	if len(usages) == 0 {
		return []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection, x509.ExtKeyUsageClientAuth}
	}
	var eku []x509.ExtKeyUsage
	for _, u := range usages {
		switch strings.ToLower(strings.TrimSpace(u)) {
		case "client_auth":
			eku = append(eku, x509.ExtKeyUsageClientAuth)
		case "server_auth":
			eku = append(eku, x509.ExtKeyUsageServerAuth)
		case "email_protection":
			eku = append(eku, x509.ExtKeyUsageEmailProtection)
		case "code_signing":
			eku = append(eku, x509.ExtKeyUsageCodeSigning)
		case "time_stamping":
			eku = append(eku, x509.ExtKeyUsageTimeStamping)
		case "ocsp_signing":
			eku = append(eku, x509.ExtKeyUsageOCSPSigning)
		}
	}
	return eku
}
