package main

import (
	"log"
	"log/slog"

	"github.com/dpxrk/pactwise-signflow/audit"
	"github.com/dpxrk/pactwise-signflow/check"
	"github.com/dpxrk/pactwise-signflow/controllers"
	"github.com/dpxrk/pactwise-signflow/crl"
	"github.com/dpxrk/pactwise-signflow/crypts"
	"github.com/dpxrk/pactwise-signflow/middleware"
	"github.com/dpxrk/pactwise-signflow/models"
	"github.com/dpxrk/pactwise-signflow/pki"
	"github.com/dpxrk/pactwise-signflow/routes"
	"github.com/dpxrk/pactwise-signflow/utils"
	"github.com/dpxrk/pactwise-signflow/workflow"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/template/html/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/viper"
)

func main() {

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %s", err)
	}

	logFile, err := utils.SetupSlogLogger()
	if err != nil {
		log.Fatalf("Error setting up logging: %s", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if err := crypts.InitKeySecret(); err != nil {
		log.Fatalf("Error deriving key secret: %s", err)
	}

	database := viper.GetString("database.path")
	db, err := sqlx.Open("sqlite3", database)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	slog.Info("connected to database", "path", database)

	db.MustExec(models.SchemaCA)
	db.MustExec(models.SchemaUserCerts)
	db.MustExec(models.SchemaSignatureRequests)
	db.MustExec(models.SchemaSignatories)
	db.MustExec(models.SchemaSignatureEvents)

	store := pki.NewStore(db)
	auditLog := audit.NewLog(db)
	coord := workflow.New(db, store, auditLog, workflow.Config{
		DeclinePolicy:            viper.GetString("workflow.decline_policy"),
		RequireUniformSignatures: viper.GetBool("workflow.require_uniform_signatures"),
	})

	// Background sweeps
	certCheckInterval := utils.SelectTime(
		viper.GetString("check_certs.unit"), viper.GetInt("check_certs.interval"))
	go check.CheckValidCerts(db, certCheckInterval)

	requestSweepInterval := utils.SelectTime(
		viper.GetString("check_requests.unit"), viper.GetInt("check_requests.interval"))
	go check.CheckRequestExpiry(coord, requestSweepInterval)

	crlInterval := utils.SelectTime(
		viper.GetString("crl.unit"), viper.GetInt("crl.interval"))
	go crl.StartCRLGeneration(db, store, crlInterval)

	engine := html.New("./template", ".html")

	app := fiber.New(fiber.Config{
		Views: engine,
	})
	app.Use(middleware.AuthMiddleware())

	ctl := controllers.New(db, store, coord, auditLog)
	routes.Setup(app, ctl)

	log.Fatal(app.Listen(viper.GetString("server.listen")))
}
