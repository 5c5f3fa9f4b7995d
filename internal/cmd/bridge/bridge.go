// Package bridge parses bridge command flags and selects stdio or HTTP transport.
package bridge

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/dapbridge/internal/platform/config"
	"github.com/louisbranch/dapbridge/internal/platform/otel"
	"github.com/louisbranch/dapbridge/internal/services/bridge/service"
)

// Config holds bridge command configuration.
type Config struct {
	HostAddr  string `env:"DAPBRIDGE_HOST_ADDR" envDefault:"localhost:4711"`
	HTTPAddr  string `env:"DAPBRIDGE_HTTP_ADDR" envDefault:"127.0.0.1:8081"`
	Transport string `env:"DAPBRIDGE_TRANSPORT" envDefault:"stdio"`
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

var configKeys = []string{
	"DAPBRIDGE_HOST_ADDR",
	"DAPBRIDGE_HTTP_ADDR",
	"DAPBRIDGE_TRANSPORT",
}

// ParseConfig parses environment and flags into a Config. Flags take
// precedence over environment values.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	var cfg Config
	if err := config.ParseEnvFrom(&cfg, environmentFrom(lookup)); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HostAddr, "host-addr", cfg.HostAddr, "debug host address")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the debug bridge.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "bridge")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	return service.Run(ctx, service.Config{
		HostAddr:  cfg.HostAddr,
		Transport: service.TransportKind(cfg.Transport),
		HTTPAddr:  cfg.HTTPAddr,
	})
}

func environmentFrom(lookup EnvLookup) map[string]string {
	environment := make(map[string]string, len(configKeys))
	if lookup == nil {
		return environment
	}
	for _, key := range configKeys {
		value, ok := lookup(key)
		if !ok {
			continue
		}
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			environment[key] = trimmed
		}
	}
	return environment
}
