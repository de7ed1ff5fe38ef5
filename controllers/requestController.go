package controllers

import (
	"github.com/dpxrk/pactwise-signflow/workflow"
	"github.com/gofiber/fiber/v3"
)

func (ctl *Controller) CreateRequest(c fiber.Ctx) error {
	in := new(workflow.CreateRequestInput)
	if err := c.Bind().JSON(in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "cannot parse JSON",
		})
	}
	in.IPAddress = c.IP()
	in.UserAgent = c.Get("User-Agent")

	req, err := ctl.Coord.CreateRequest(*in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": req})
}

func (ctl *Controller) SendRequest(c fiber.Ctx) error {
	if err := ctl.Coord.Send(c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (ctl *Controller) CancelRequest(c fiber.Ctx) error {
	data := new(struct {
		Actor string `json:"actor"`
	})
	if err := c.Bind().JSON(data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "cannot parse JSON",
		})
	}
	if err := ctl.Coord.Cancel(c.Params("id"), data.Actor, c.IP(), c.Get("User-Agent")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (ctl *Controller) GetRequest(c fiber.Ctx) error {
	req, sigs, err := ctl.Coord.GetRequest(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": fiber.Map{
		"request":     req,
		"signatories": sigs,
	}})
}

func (ctl *Controller) ListRequests(c fiber.Ctx) error {
	reqs, err := ctl.Coord.ListRequests(c.Query("status"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": reqs})
}
