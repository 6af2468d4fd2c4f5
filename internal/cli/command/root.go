package command

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/alphaleadership/skid-inc-sub000/internal/cli/output"
	"github.com/alphaleadership/skid-inc-sub000/internal/config"
	"github.com/alphaleadership/skid-inc-sub000/internal/governor"
	"github.com/alphaleadership/skid-inc-sub000/internal/infra/buildinfo"
	"github.com/alphaleadership/skid-inc-sub000/internal/infra/confloader"
	"github.com/alphaleadership/skid-inc-sub000/internal/registry"
	"github.com/alphaleadership/skid-inc-sub000/internal/store"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/logger"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/metric"
	"github.com/alphaleadership/skid-inc-sub000/pkg/crypto/adaptive"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "skidsave",
		Usage:   "Skid Inc save engine management tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ListCommand(),
			ShowCommand(),
			VerifyCommand(),
			BackupCommand(),
			PruneCommand(),
			DiskUsageCommand(),
			MonitorCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the engine config file (YAML)",
			EnvVars: []string{"SKIDINC_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "Save directory (overrides config)",
			EnvVars: []string{"SKIDINC_STORE_DIR"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
	}
}

// loadSettings builds the engine configuration from defaults, the
// optional config file, SKIDINC_ environment variables and the global
// flags, in that order.
func loadSettings(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	loader := confloader.NewLoader(
		confloader.WithConfigFile(c.String("config")),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dir := c.String("dir"); dir != "" {
		cfg.Store.Dir = dir
	}
	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
	}
	if err := config.Verify(cfg); err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.Log.Level)
	return cfg, nil
}

// openStore assembles the read side of the engine: compressor, optional
// cipher, manifest registry and the store over the configured directory.
func openStore(c *cli.Context) (*store.Store, *registry.Registry, *config.Config, error) {
	return openStoreWithMetrics(c, nil)
}

func openStoreWithMetrics(c *cli.Context, metrics *metric.Registry) (*store.Store, *registry.Registry, *config.Config, error) {
	cfg, err := loadSettings(c)
	if err != nil {
		return nil, nil, nil, err
	}

	gov, err := governor.New(governor.Config{
		CompressionThreshold: cfg.Store.CompressionThreshold,
		CompressionLevel:     cfg.Store.CompressionLevel,
		MemoryCeiling:        cfg.Governor.MemoryCeilingBytes,
		BaseInterval:         cfg.Scheduler.PeriodicInterval,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	var cipher adaptive.Cipher
	if cfg.Store.EncryptionKey != "" {
		key, err := hex.DecodeString(cfg.Store.EncryptionKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("decode encryption key: %w", err)
		}
		if cipher, err = adaptive.New(key); err != nil {
			return nil, nil, nil, err
		}
	}

	reg, err := registry.Open(cfg.Store.Dir)
	if err != nil {
		return nil, nil, nil, err
	}

	st, err := store.New(store.Config{
		Dir:        cfg.Store.Dir,
		QuotaBytes: cfg.Store.QuotaBytes,
		Compressor: gov,
		Cipher:     cipher,
		Registrar:  reg,
		Metrics:    metrics,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return st, reg, cfg, nil
}

func formatter(c *cli.Context) output.Formatter {
	return output.NewFormatter(output.Format(c.String("output")), c.Bool("wide"))
}

func render(c *cli.Context, data any) error {
	return formatter(c).Format(os.Stdout, data)
}
