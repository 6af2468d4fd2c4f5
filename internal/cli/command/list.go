package command

import (
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

// saveRow is one listing entry.
type saveRow struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Size     string `json:"size"`
	Bytes    int64  `json:"bytes" table:"wide"`
	Modified string `json:"modified"`
}

// ListCommand returns the list command.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List saves and backups",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "backups",
				Aliases: []string{"b"},
				Usage:   "Only show backups",
			},
		},
		Action: listSaves,
	}
}

func listSaves(c *cli.Context) error {
	st, _, _, err := openStore(c)
	if err != nil {
		return err
	}

	blobs, err := st.List(c.Context)
	if err != nil {
		return err
	}

	rows := make([]saveRow, 0, len(blobs))
	for _, b := range blobs {
		if c.Bool("backups") && !b.IsBackup {
			continue
		}
		kind := "save"
		if b.IsBackup {
			kind = "backup"
		}
		rows = append(rows, saveRow{
			Name:     b.Name,
			Kind:     kind,
			Size:     humanize.IBytes(uint64(b.Size)),
			Bytes:    b.Size,
			Modified: humanize.Time(b.ModTime),
		})
	}
	return render(c, rows)
}
