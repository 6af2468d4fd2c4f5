package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/alphaleadership/skid-inc-sub000/internal/cli/output"
)

type verifyRow struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// VerifyCommand returns the verify command.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check stored blobs against the manifest checksums",
		ArgsUsage: "[NAME]",
		Action:    verifySaves,
	}
}

func verifySaves(c *cli.Context) error {
	_, reg, _, err := openStore(c)
	if err != nil {
		return err
	}

	if c.NArg() > 0 {
		name := c.Args().First()
		res := reg.ValidateIntegrity(name)
		row := verifyRow{Name: name, Status: "ok"}
		if !res.Valid {
			row.Status = "corrupt"
			row.Reason = res.Reason
		}
		if err := render(c, []verifyRow{row}); err != nil {
			return err
		}
		if !res.Valid {
			return fmt.Errorf("%s failed verification: %s", name, res.Reason)
		}
		return nil
	}

	names := reg.Names()
	spin := output.NewSpinner(os.Stderr, fmt.Sprintf("verifying %d blobs", len(names)))
	spin.Start()
	report := reg.ValidateAll()
	if len(report.InvalidFiles) == 0 {
		spin.Success(fmt.Sprintf("%d blobs verified", len(names)))
	} else {
		spin.Fail(fmt.Sprintf("%d of %d blobs corrupt", len(report.InvalidFiles), len(names)))
	}

	rows := make([]verifyRow, 0, len(names))
	for _, name := range names {
		row := verifyRow{Name: name, Status: "ok"}
		if reason, bad := report.Details[name]; bad {
			row.Status = "corrupt"
			row.Reason = reason
		}
		rows = append(rows, row)
	}
	if err := render(c, rows); err != nil {
		return err
	}
	if len(report.InvalidFiles) > 0 {
		return fmt.Errorf("%d of %d blobs failed verification", len(report.InvalidFiles), len(rows))
	}
	return nil
}
