package main

import (
	"github.com/joho/godotenv"

	"github.com/medipoint/clinicpulse/internal/app"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	app.SetVersion(version)
	app.Execute()
}
