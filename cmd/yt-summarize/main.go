package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/MimeLyc/ytscribe/internal/cli"
	"github.com/MimeLyc/ytscribe/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, config.SummarizeVariant, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
