// Command server runs the perfectkey authentication service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/perfectkey/internal/server"
	"github.com/dmitrijs2005/perfectkey/internal/server/config"
)

func main() {
	ctx := context.Background()

	app, err := server.NewApp(ctx, config.LoadConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}

	app.Run(ctx)
}
