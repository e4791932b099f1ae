package main

import (
	log "github.com/sirupsen/logrus"

	"salla-repricer/app"
	"salla-repricer/config"
)

func main() {
	// Load config from .env file
	cfg := config.LoadFromEnv()

	// Create and start app
	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatal(err)
	}
}
