package command

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/alphaleadership/skid-inc-sub000/internal/scheduler"
)

// PruneCommand returns the prune command.
func PruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete backups past the retention window",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "retention-days",
				Aliases: []string{"r"},
				Usage:   "Override the configured retention window",
			},
		},
		Action: pruneBackups,
	}
}

func pruneBackups(c *cli.Context) error {
	st, _, cfg, err := openStore(c)
	if err != nil {
		return err
	}

	days := cfg.Scheduler.BackupRetentionDays
	if c.Int("retention-days") > 0 {
		days = c.Int("retention-days")
	}

	sched, err := scheduler.New(scheduler.Config{
		Store:               st,
		BackupRetentionDays: days,
	})
	if err != nil {
		return err
	}
	pruned, err := sched.CleanupOldBackups(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d backups, freed %s, usage now %.1f%%\n",
		pruned.Removed, humanize.IBytes(uint64(pruned.Freed)), pruned.UsagePct)
	return nil
}
