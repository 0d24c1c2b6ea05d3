// Package main starts the support presence service and handles termination.
//
// The process pairs storefront customers with the support admin over
// WebSockets; identity comes from the storefront's auth layer.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	supportcmd "github.com/louisbranch/supportdesk/internal/cmd/supportdesk"
	"github.com/louisbranch/supportdesk/internal/platform/config"
)

func main() {
	log.SetPrefix("[SUPPORT] ")
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := supportcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Probe {
		if err := supportcmd.Probe(ctx, cfg); err != nil {
			stop()
			config.Exitf("%v", err)
		}
		return
	}

	if err := supportcmd.Run(ctx, cfg); err != nil {
		stop()
		config.Exitf("failed to serve: %v", err)
	}
}
