package controllers

import (
	"github.com/dpxrk/pactwise-signflow/workflow"
	"github.com/gofiber/fiber/v3"
)

// Signatory endpoints are called with a signatory id the portal collaborator
// already resolved from its bearer token; this engine trusts that
// resolution.

func (ctl *Controller) ViewSignatory(c fiber.Ctx) error {
	if err := ctl.Coord.RecordView(c.Params("id"), c.IP(), c.Get("User-Agent")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (ctl *Controller) SignSignatory(c fiber.Ctx) error {
	data := new(struct {
		SignatureType string `json:"signature_type"`
		SignatureData string `json:"signature_data"`
		DocumentHash  string `json:"document_hash"`
		CertificateId int64  `json:"certificate_id"`
	})
	if err := c.Bind().JSON(data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "cannot parse JSON",
		})
	}
	if data.DocumentHash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "document_hash is required",
		})
	}

	payload := workflow.SignaturePayload{
		Type:      data.SignatureType,
		Data:      data.SignatureData,
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	}
	if err := ctl.Coord.Sign(c.Params("id"), payload, data.DocumentHash, data.CertificateId); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (ctl *Controller) DeclineSignatory(c fiber.Ctx) error {
	data := new(struct {
		Reason string `json:"reason"`
	})
	if err := c.Bind().JSON(data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "cannot parse JSON",
		})
	}
	if err := ctl.Coord.Decline(c.Params("id"), data.Reason, c.IP(), c.Get("User-Agent")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
