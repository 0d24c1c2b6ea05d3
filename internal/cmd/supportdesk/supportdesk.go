// Package supportdesk parses support command flags and composes transport entrypoints.
package supportdesk

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	entrypoint "github.com/louisbranch/supportdesk/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/supportdesk/internal/platform/grpc"
	server "github.com/louisbranch/supportdesk/internal/services/support/app"
)

const probeTimeout = 3 * time.Second

// Config holds support command configuration. Environment names carry the
// SUPPORTDESK_ prefix.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR"        envDefault:":8090"`
	GRPCAddr        string        `env:"GRPC_ADDR"`
	TokenSecret     string        `env:"TOKEN_SECRET"`
	HistoryLimit    int           `env:"HISTORY_LIMIT"    envDefault:"1000"`
	CloseSuperseded bool          `env:"CLOSE_SUPERSEDED" envDefault:"true"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	// Probe checks a running instance's gRPC health instead of serving.
	Probe bool
}

// ParseConfig parses environment and flags into a Config. Flags override
// environment values.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	fs.StringVar(&cfg.HTTPAddr, "http-addr", ":8090", "support HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", "", "gRPC health listen address (disabled when empty)")
	fs.StringVar(&cfg.TokenSecret, "token-secret", "", "storefront JWT secret (identify is trusted when empty)")
	fs.IntVar(&cfg.HistoryLimit, "history-limit", 1000, "messages kept per session")
	fs.BoolVar(&cfg.CloseSuperseded, "close-superseded", true, "close connections replaced by a newer identify")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 5*time.Second, "graceful shutdown limit for HTTP and telemetry")
	fs.BoolVar(&cfg.Probe, "probe", false, "check gRPC health of a running instance and exit")
	if err := entrypoint.ParseConfigFromArgs(&cfg, fs, args); err != nil {
		return Config{}, err
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("history limit must be positive, got %d", cfg.HistoryLimit)
	}
	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be positive, got %s", cfg.ShutdownTimeout)
	}
	return cfg, nil
}

// Run builds the support app and serves until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	options := entrypoint.RunOptions{ShutdownTimeout: cfg.ShutdownTimeout}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceSupport, options, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:        cfg.HTTPAddr,
			GRPCAddr:        cfg.GRPCAddr,
			TokenSecret:     cfg.TokenSecret,
			HistoryLimit:    cfg.HistoryLimit,
			CloseSuperseded: cfg.CloseSuperseded,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}); err != nil {
			return fmt.Errorf("serve support: %w", err)
		}
		return nil
	})
}

// Probe reports whether the instance at cfg.GRPCAddr is serving.
func Probe(ctx context.Context, cfg Config) error {
	if cfg.GRPCAddr == "" {
		return fmt.Errorf("probe requires -grpc-addr")
	}
	logf := func(format string, args ...any) {
		log.Printf("probe %s", fmt.Sprintf(format, args...))
	}
	if err := platformgrpc.Probe(ctx, cfg.GRPCAddr, entrypoint.ServiceSupport, probeTimeout, logf); err != nil {
		return fmt.Errorf("probe %s: %w", cfg.GRPCAddr, err)
	}
	return nil
}
