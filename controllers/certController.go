package controllers

import (
	"crypto/x509"
	"strconv"

	"github.com/dpxrk/pactwise-signflow/crypts"
	"github.com/dpxrk/pactwise-signflow/pki"
	"github.com/gofiber/fiber/v3"
	"software.sslmate.com/src/go-pkcs12"
)

func (ctl *Controller) AddUserCert(c fiber.Ctx) error {
	req := new(pki.CertRequest)
	if err := c.Bind().JSON(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "cannot parse JSON",
		})
	}
	if req.CAId == 0 || req.CommonName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "ca_id and CommonName are required",
		})
	}

	issued, err := ctl.Store.IssueCertificate(*req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": issued})
}

func (ctl *Controller) ListUserCerts(c fiber.Ctx) error {
	var caID int64
	if v := c.Query("ca_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "invalid ca_id"})
		}
		caID = id
	}
	certs, err := ctl.Store.ListCertificates(caID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": certs})
}

func (ctl *Controller) RevokeUserCert(c fiber.Ctx) error {
	data := new(struct {
		Id           int64  `json:"id"`
		ReasonRevoke string `json:"ReasonRevoke"`
	})
	if err := c.Bind().JSON(data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "cannot parse JSON",
		})
	}
	if data.Id == 0 || data.ReasonRevoke == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "certificate id and revocation reason are required",
		})
	}

	if err := ctl.Store.RevokeCertificate(data.Id, data.ReasonRevoke); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// ValidateCert runs chain validation for a certificate as of now.
func (ctl *Controller) ValidateCert(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "invalid certificate id"})
	}
	result, err := ctl.Store.ValidateChain(id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": result})
}

// CertBundle exports a certificate with its private key and issuer chain
// as PKCS#12. Only certificates whose key pair the store generated carry a
// stored key.
func (ctl *Controller) CertBundle(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "invalid certificate id"})
	}
	password := c.Query("password")
	if password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "password query parameter is required"})
	}

	cert, err := ctl.Store.GetCertificate(id)
	if err != nil {
		return fail(c, err)
	}
	if cert.PrivateKey == "" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"status":  "error",
			"message": "certificate was issued without a stored private key",
		})
	}

	key, err := ctl.Store.CertificateKey(cert)
	if err != nil {
		return fail(c, err)
	}
	leaf, err := crypts.ParseCertificatePEM([]byte(cert.Certificate))
	if err != nil {
		return fail(c, err)
	}

	// Collect the issuer chain for the bundle; a broken chain still
	// exports the leaf.
	chain := []*x509.Certificate{}
	caID := cert.CAId
	for caID != 0 && len(chain) < pki.MaxChainHops {
		ca, err := ctl.Store.GetCA(caID)
		if err != nil {
			break
		}
		caCert, err := crypts.ParseCertificatePEM([]byte(ca.PublicKey))
		if err != nil {
			break
		}
		chain = append(chain, caCert)
		if ca.IsRoot() {
			break
		}
		caID = ca.ParentCAId
	}

	bundle, err := pkcs12.Modern.Encode(key, leaf, chain, password)
	if err != nil {
		return fail(c, err)
	}

	c.Set("Content-Type", "application/x-pkcs12")
	c.Set("Content-Disposition", `attachment; filename="certificate.p12"`)
	return c.Send(bundle)
}
