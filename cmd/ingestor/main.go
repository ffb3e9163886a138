// Package main is the entry point for the pricefeed ingestor.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jonesrussell/pricefeed/internal/app"
)

var (
	// version can be set at build time via -ldflags
	version = "dev"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		log.Printf("pricefeed ingestor version %s\n", version)
		os.Exit(0)
	}

	application, err := app.New(app.Options{
		ConfigPath: *configPath,
		Version:    version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("Service error: %v", err)
	}
}
