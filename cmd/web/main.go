package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"padron/internal/app"
)

func main() {
	var envFile string
	flag.StringVar(&envFile, "env", ".env", "path to an optional .env file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.RunWeb(ctx, app.Options{DotEnv: []string{envFile}}); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
