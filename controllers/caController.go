package controllers

import (
	"strconv"

	"github.com/dpxrk/pactwise-signflow/pki"
	"github.com/gofiber/fiber/v3"
)

func (ctl *Controller) AddCA(c fiber.Ctx) error {
	req := new(pki.CARequest)
	if err := c.Bind().JSON(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "cannot parse JSON",
		})
	}
	if req.CommonName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "CommonName is required",
		})
	}

	ca, err := ctl.Store.IssueCA(*req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": ca})
}

func (ctl *Controller) ListCA(c fiber.Ctx) error {
	cas, err := ctl.Store.ListCAs()
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": cas})
}

func (ctl *Controller) GetCA(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "invalid CA id"})
	}
	ca, err := ctl.Store.GetCA(id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": ca})
}

func (ctl *Controller) RevokeCA(c fiber.Ctx) error {
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
			"message": "CA id and revocation reason are required",
		})
	}

	if err := ctl.Store.RevokeCA(data.Id, data.ReasonRevoke); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
