package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/okian/adroute/internal/seed"
	"github.com/okian/adroute/pkg/logger"
)

const (
	defaultConcurrency = 8
	defaultTimeout     = 10 * time.Second
	defaultRunTimeout  = 5 * time.Minute
)

func main() {
	var (
		baseURL     = pflag.String("addr", "http://localhost:9080", "Base URL of the service")
		file        = pflag.StringP("file", "f", "buyers.yaml", "YAML or JSON file with buyers")
		concurrency = pflag.IntP("concurrency", "c", defaultConcurrency, "Parallel registrations")
		timeout     = pflag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		probes      = pflag.StringArray("probe", nil, "Route probe as timestamp,device,state (repeatable)")
		skipHealth  = pflag.Bool("skip-health", false, "Do not check /healthz before seeding")
		logLevel    = pflag.String("log-level", "info", "Log level")
	)
	pflag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(*logLevel); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	cfg := &seed.Config{
		BaseURL:     *baseURL,
		File:        *file,
		Concurrency: *concurrency,
		Timeout:     *timeout,
		SkipHealth:  *skipHealth,
	}
	for _, raw := range *probes {
		p, err := seed.ParseProbe(raw)
		if err != nil {
			os.Stderr.WriteString(err.Error() + "\n")
			os.Exit(2)
		}
		cfg.Probes = append(cfg.Probes, p)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	stats, err := seed.Run(ctx, cfg, os.Stdout)
	cancel()
	stop()
	if err != nil {
		logger.Get().Error(context.Background(), "seed failed", logger.Error(err))
		os.Exit(1)
	}
	if stats.BuyersFailed > 0 {
		os.Exit(1)
	}
}
