package command

import (
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

type usageReport struct {
	Used    string  `json:"used"`
	Quota   string  `json:"quota"`
	Percent float64 `json:"percent"`
	Saves   int     `json:"saves"`
	Backups int     `json:"backups"`
}

// DiskUsageCommand returns the du command.
func DiskUsageCommand() *cli.Command {
	return &cli.Command{
		Name:   "du",
		Usage:  "Show save directory usage against the quota",
		Action: diskUsage,
	}
}

func diskUsage(c *cli.Context) error {
	st, _, _, err := openStore(c)
	if err != nil {
		return err
	}

	usage, err := st.DiskUsage(c.Context)
	if err != nil {
		return err
	}
	blobs, err := st.List(c.Context)
	if err != nil {
		return err
	}

	report := usageReport{
		Used:    humanize.IBytes(uint64(usage.UsedBytes)),
		Quota:   humanize.IBytes(uint64(usage.QuotaBytes)),
		Percent: usage.Percent,
	}
	for _, b := range blobs {
		if b.IsBackup {
			report.Backups++
		} else {
			report.Saves++
		}
	}
	return render(c, report)
}
