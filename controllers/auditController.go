package controllers

import (
	"github.com/gofiber/fiber/v3"
)

// RequestEvents returns the ordered audit trail of a request as JSON.
func (ctl *Controller) RequestEvents(c fiber.Ctx) error {
	requestID := c.Params("id")
	if _, _, err := ctl.Coord.GetRequest(requestID); err != nil {
		return fail(c, err)
	}
	events, err := ctl.Audit.Replay(requestID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": events})
}

// RequestHistory renders the audit trail as an HTML compliance report.
func (ctl *Controller) RequestHistory(c fiber.Ctx) error {
	requestID := c.Params("id")
	req, sigs, err := ctl.Coord.GetRequest(requestID)
	if err != nil {
		return fail(c, err)
	}
	events, err := ctl.Audit.Replay(requestID)
	if err != nil {
		return fail(c, err)
	}
	return c.Render("report/history", fiber.Map{
		"Title":       "Signature history " + req.Id,
		"Request":     req,
		"Signatories": sigs,
		"Events":      events,
	})
}
