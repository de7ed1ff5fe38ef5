package controllers

import (
	"errors"

	"github.com/dpxrk/pactwise-signflow/audit"
	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/dpxrk/pactwise-signflow/ocsp"
	"github.com/dpxrk/pactwise-signflow/pki"
	"github.com/dpxrk/pactwise-signflow/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/jmoiron/sqlx"
)

// Controller holds the engine components behind the HTTP surface.
type Controller struct {
	DB        *sqlx.DB
	Store     *pki.Store
	Coord     *workflow.Coordinator
	Audit     *audit.Log
	Responder *ocsp.Responder
}

func New(db *sqlx.DB, store *pki.Store, coord *workflow.Coordinator, auditLog *audit.Log) *Controller {
	return &Controller{
		DB:        db,
		Store:     store,
		Coord:     coord,
		Audit:     auditLog,
		Responder: ocsp.NewResponder(db, store),
	}
}

func (ctl *Controller) Index(c fiber.Ctx) error {
	return c.Render("index", fiber.Map{
		"Title": "Signature Workflow Engine",
	})
}

func (ctl *Controller) Healthz(c fiber.Ctx) error {
	if err := ctl.DB.Ping(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "error"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// fail maps engine errors onto HTTP statuses: structural and input errors
// are 400/404, temporal conflicts 409, policy violations 422.
func fail(c fiber.Ctx, err error) error {
	status := fiber.StatusBadRequest
	switch {
	case errors.Is(err, models.ErrUnknownCA),
		errors.Is(err, models.ErrUnknownCertificate),
		errors.Is(err, models.ErrUnknownRequest),
		errors.Is(err, models.ErrUnknownSignatory):
		status = fiber.StatusNotFound
	case errors.Is(err, models.ErrNotOwner):
		status = fiber.StatusForbidden
	case errors.Is(err, models.ErrRevokedCA),
		errors.Is(err, models.ErrIssuerNotActive),
		errors.Is(err, models.ErrInvalidCertificate),
		errors.Is(err, models.ErrInvalidChain),
		errors.Is(err, models.ErrDocumentHashMismatch),
		errors.Is(err, models.ErrRequestAlreadyCompleted),
		errors.Is(err, models.ErrRequestClosed),
		errors.Is(err, models.ErrConcurrentUpdate):
		status = fiber.StatusConflict
	case errors.Is(err, models.ErrOutOfOrder),
		errors.Is(err, models.ErrAlreadyResolved),
		errors.Is(err, models.ErrNotSent),
		errors.Is(err, models.ErrAmbiguousOrder),
		errors.Is(err, models.ErrRequestNotDraft),
		errors.Is(err, models.ErrMixedSignatureTypes):
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": err.Error(),
	})
}
