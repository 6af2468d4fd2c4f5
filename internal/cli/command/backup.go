package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/alphaleadership/skid-inc-sub000/internal/scheduler"
)

// BackupCommand returns the backup command.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:      "backup",
		Usage:     "Write a timestamped backup of an existing save",
		ArgsUsage: "[NAME]",
		Action:    backupSave,
	}
}

func backupSave(c *cli.Context) error {
	st, _, cfg, err := openStore(c)
	if err != nil {
		return err
	}
	name := scheduler.DefaultSaveName
	if c.NArg() > 0 {
		name = c.Args().First()
	}

	res, err := st.Read(c.Context, name)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Config{
		Store:               st,
		BackupRetentionDays: cfg.Scheduler.BackupRetentionDays,
	})
	if err != nil {
		return err
	}
	done, err := sched.CreateBackup(c.Context, res.Payload)
	if err != nil {
		return err
	}
	fmt.Printf("created %s (%d bytes)\n", done.Filename, done.Size)
	return nil
}
