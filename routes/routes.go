package routes

import (
	"github.com/dpxrk/pactwise-signflow/controllers"
	"github.com/gofiber/fiber/v3"
)

func Setup(app *fiber.App, ctl *controllers.Controller) {

	app.Get("/", ctl.Index)
	app.Get("/index", ctl.Index)
	app.Get("/healthz", ctl.Healthz)

	api := app.Group("/api/v1")

	// Certificate authorities
	api.Post("/ca", ctl.AddCA)
	api.Get("/ca", ctl.ListCA)
	api.Get("/ca/:id", ctl.GetCA)
	api.Post("/ca/revoke", ctl.RevokeCA)

	// User certificates
	api.Post("/certs", ctl.AddUserCert)
	api.Get("/certs", ctl.ListUserCerts)
	api.Post("/certs/revoke", ctl.RevokeUserCert)
	api.Get("/certs/:id/validate", ctl.ValidateCert)
	api.Get("/certs/:id/bundle", ctl.CertBundle)

	// Signature requests
	api.Post("/requests", ctl.CreateRequest)
	api.Get("/requests", ctl.ListRequests)
	api.Get("/requests/:id", ctl.GetRequest)
	api.Post("/requests/:id/send", ctl.SendRequest)
	api.Post("/requests/:id/cancel", ctl.CancelRequest)
	api.Get("/requests/:id/events", ctl.RequestEvents)
	api.Get("/requests/:id/history", ctl.RequestHistory)

	// Signatory actions (signatory id resolved upstream by the portal)
	api.Post("/signatories/:id/view", ctl.ViewSignatory)
	api.Post("/signatories/:id/sign", ctl.SignSignatory)
	api.Post("/signatories/:id/decline", ctl.DeclineSignatory)

	// Revocation status (public)
	api.Get("/crl/:ca_id", ctl.CRL)
	api.Post("/ocsp", ctl.OCSP)
}
