package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/fieldauth/internal/logging"
	"github.com/dmitrijs2005/fieldauth/internal/server"
	"github.com/dmitrijs2005/fieldauth/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}
