package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/adroute/pkg/logger"
)

// Run loads the buyers file, registers every buyer, runs the probes and
// writes a summary to out. Rejected buyers are counted, not fatal.
func Run(ctx context.Context, cfg *Config, out io.Writer) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("seed")

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := NewClient(cfg.BaseURL, timeout)

	buyers, err := LoadFile(cfg.File)
	if err != nil {
		return stats, err
	}
	stats.BuyersLoaded = len(buyers)
	log.Info(ctx, "loaded buyers", logger.String("file", cfg.File), logger.Int("buyers", len(buyers)))

	if !cfg.SkipHealth {
		if err := client.Health(ctx); err != nil {
			return stats, err
		}
	}

	var registered, rejected, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range buyers {
		b := &buyers[i]
		g.Go(func() error {
			err := client.Register(gctx, b)
			switch {
			case err == nil:
				registered.Add(1)
			case errors.Is(err, ErrRejected):
				rejected.Add(1)
				log.Warn(gctx, "buyer rejected", logger.String("buyer", b.ID), logger.Error(err))
			default:
				failed.Add(1)
				log.Error(gctx, "buyer registration failed", logger.String("buyer", b.ID), logger.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	stats.BuyersRegistered = int(registered.Load())
	stats.BuyersRejected = int(rejected.Load())
	stats.BuyersFailed = int(failed.Load())

	for _, p := range cfg.Probes {
		stats.Probes = append(stats.Probes, client.Route(ctx, p))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	writeSummary(out, stats)

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

func writeSummary(out io.Writer, stats *Stats) {
	fmt.Fprintf(out, "buyers: %d loaded, %d registered, %d rejected, %d failed (%s)\n",
		stats.BuyersLoaded, stats.BuyersRegistered, stats.BuyersRejected, stats.BuyersFailed,
		stats.Duration.Round(time.Millisecond))
	for _, r := range stats.Probes {
		switch {
		case r.Err != nil:
			fmt.Fprintf(out, "probe %s: error: %v\n", r.Probe, r.Err)
		case r.Location != "":
			fmt.Fprintf(out, "probe %s: %d -> %s\n", r.Probe, r.Status, r.Location)
		default:
			fmt.Fprintf(out, "probe %s: %d\n", r.Probe, r.Status)
		}
	}
}
