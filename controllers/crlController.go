package controllers

import (
	"strconv"

	"github.com/dpxrk/pactwise-signflow/crl"
	"github.com/gofiber/fiber/v3"
)

// CRL serves the revocation list of a CA, generated on demand.
func (ctl *Controller) CRL(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("ca_id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "invalid CA id"})
	}
	ca, err := ctl.Store.GetCA(id)
	if err != nil {
		return fail(c, err)
	}
	der, err := crl.GenerateForCA(ctl.DB, ctl.Store, ca)
	if err != nil {
		return fail(c, err)
	}
	c.Set("Content-Type", "application/pkix-crl")
	return c.Send(der)
}

// OCSP answers a DER OCSP request from the body.
func (ctl *Controller) OCSP(c fiber.Ctx) error {
	resp, err := ctl.Responder.HandleRequest(c.Body())
	if err != nil {
		return fail(c, err)
	}
	c.Set("Content-Type", "application/ocsp-response")
	return c.Send(resp)
}
