package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/July-Jio/ritmex-bot/internal/app"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML configuration")
	envPath := flag.String("env", ".env", "path to env file with account credentials")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, *configPath, *envPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
