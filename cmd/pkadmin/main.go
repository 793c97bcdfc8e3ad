package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/perfectkey/internal/admin"
	"github.com/dmitrijs2005/perfectkey/internal/logging"
	"github.com/dmitrijs2005/perfectkey/internal/server/config"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/perfectkey/internal/server/services"
)

func main() {

	cmd, args := admin.SplitCommand(os.Args[1:])
	if cmd == "" {
		fmt.Fprintln(os.Stderr, admin.ErrUsage)
		os.Exit(2)
	}

	ctx := context.Background()
	cfg := config.LoadConfig()

	db, rm, err := repomanager.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer db.Close()

	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	avatars := services.NewProfileService(db, rm, cfg, logger)

	app := admin.NewApp(db, rm, avatars, cfg.DefaultHotelCode, os.Stdin, os.Stdout)
	if err := app.Run(ctx, cmd, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		db.Close()
		os.Exit(1)
	}

}
