package utils

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// SetupSlogLogger configures structured logging from the config
// (logging.level, logging.format, logging.output, logging.file) and makes
// the result the default slog logger. The returned file, if any, belongs
// to the caller.
func SetupSlogLogger() (*os.File, error) {
	level := strings.ToLower(viper.GetString("logging.level"))
	format := strings.ToLower(viper.GetString("logging.format"))
	output := strings.ToLower(viper.GetString("logging.output"))
	logFile := viper.GetString("logging.file")

	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "json"
	}
	if output == "" {
		output = "stdout"
	}
	if logFile == "" {
		logFile = "./logs/signflow.log"
	}

	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var writer io.Writer
	var file *os.File

	openLogFile := func() (*os.File, error) {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return nil, fmt.Errorf("cannot create log directory: %w", err)
		}
		return os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	}

	switch output {
	case "stdout":
		writer = os.Stdout
	case "file":
		f, err := openLogFile()
		if err != nil {
			return nil, err
		}
		file = f
		writer = f
	case "both":
		f, err := openLogFile()
		if err != nil {
			return nil, err
		}
		file = f
		writer = io.MultiWriter(os.Stdout, f)
	default:
		writer = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	slog.SetDefault(slog.New(handler))

	// Route the standard logger through the same writer; slog owns the
	// formatting.
	if output != "stdout" {
		log.SetOutput(writer)
	}
	log.SetFlags(0)

	slog.Info("logging configured", "level", level, "format", format, "output", output)
	return file, nil
}
