package command

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alphaleadership/skid-inc-sub000/internal/governor"
	"github.com/alphaleadership/skid-inc-sub000/internal/infra/confloader"
	"github.com/alphaleadership/skid-inc-sub000/internal/infra/shutdown"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/logger"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/metric"
)

// MonitorCommand returns the monitor command.
func MonitorCommand() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "Serve Prometheus metrics for a save directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Metrics listen address",
				Value:   ":9163",
			},
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Sampling interval",
				Value:   10 * time.Second,
			},
		},
		Action: monitor,
	}
}

func monitor(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}

	metrics := metric.NewRegistry()
	gov, err := governor.New(governor.Config{
		MemoryCeiling: cfg.Governor.MemoryCeilingBytes,
		Metrics:       metrics,
	})
	if err != nil {
		return err
	}
	st, _, _, err := openStoreWithMetrics(c, metrics)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: c.String("listen"), Handler: mux}

	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.Duration("interval"))
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				gov.CheckMemory()
				if _, err := st.DiskUsage(c.Context); err != nil {
					logger.Warn("disk usage sample failed", "error", err)
				}
			}
		}
	}()

	// Hot-reload the log level while monitoring long-running dirs.
	if path := c.String("config"); path != "" {
		watcher, err := confloader.NewWatcher()
		if err != nil {
			return err
		}
		if err := watcher.Watch(path); err != nil {
			return err
		}
		watcher.OnChange(func(changed string) {
			fresh, err := loadSettings(c)
			if err != nil {
				logger.Warn("config reload failed", "path", changed, "error", err)
				return
			}
			logger.SetLevel(fresh.Log.Level)
			logger.Info("config reloaded", "path", changed, "log_level", fresh.Log.Level)
		})
		watcher.StartAsync()
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	handler := shutdown.NewHandler(10 * time.Second)
	handler.OnShutdown(func(ctx context.Context) error {
		close(stopCh)
		return srv.Shutdown(ctx)
	})

	fmt.Printf("serving metrics on %s/metrics for %s\n", c.String("listen"), cfg.Store.Dir)
	select {
	case err := <-errCh:
		return err
	case <-waitDone(handler):
		return nil
	}
}

func waitDone(h *shutdown.Handler) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		_ = h.Wait()
		close(ch)
	}()
	return ch
}
