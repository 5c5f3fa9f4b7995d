package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	bridgecmd "github.com/louisbranch/dapbridge/internal/cmd/bridge"
)

// main starts the debug bridge on stdio or HTTP.
func main() {
	cfg, err := bridgecmd.ParseConfig(flag.CommandLine, os.Args[1:], func(key string) (string, bool) {
		value, ok := os.LookupEnv(key)
		return value, ok
	})
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[DAPBRIDGE] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bridgecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve bridge: %v", err)
	}
}
