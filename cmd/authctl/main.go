package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/fieldauth/internal/authctl"
	"github.com/dmitrijs2005/fieldauth/internal/logging"
	"github.com/dmitrijs2005/fieldauth/internal/server"
	"github.com/dmitrijs2005/fieldauth/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewJSON(os.Stderr, cfg.LogLevel)

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	tools := &authctl.Tools{
		Sessions: app.Sessions(),
		Revoker:  app.Revoker(),
		Sweeper:  app.Sweeper(),
		In:       os.Stdin,
		Out:      os.Stdout,
	}
	runErr := tools.Run(ctx, os.Args[1:])

	if err := app.Close(); err != nil {
		log.Printf("close: %v", err)
	}
	if runErr != nil {
		log.Fatalf("%v", runErr)
	}

}
