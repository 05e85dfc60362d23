// Inference Feed streams deepMM bond inference quotes into configurable
// views over a resilient WebSocket session.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/deepmm/inference-feed/app"
	"github.com/deepmm/inference-feed/ops"
)

var (
	// version and buildString are injected during the build.
	version     = "v0.0.0"
	buildString = "dev build"
)

func initLogger() (*slog.Logger, *ops.LogBuffer) {
	var level slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logBuffer := ops.NewLogBuffer(500)
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(ops.NewTeeHandler(inner, logBuffer)), logBuffer
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("Inference Feed %s\n", version)
		fmt.Printf("Build: %s\n", buildString)
		os.Exit(0)
	}

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger, logBuffer := initLogger()

	a := app.NewApp(logger)
	a.SetVersion(version)
	a.SetLogBuffer(logBuffer)

	if err := a.LoadConfig(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := a.Run(); err != nil {
		logger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
}
