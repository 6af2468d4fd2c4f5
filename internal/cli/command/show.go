package command

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// ShowCommand returns the show command.
func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a save's payload or its manifest metadata",
		ArgsUsage: "NAME",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "meta",
				Aliases: []string{"m"},
				Usage:   "Show manifest metadata instead of the payload",
			},
		},
		Action: showSave,
	}
}

func showSave(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: skidsave show NAME")
	}
	name := c.Args().First()

	st, reg, _, err := openStore(c)
	if err != nil {
		return err
	}

	if c.Bool("meta") {
		info, ok := reg.Lookup(name)
		if !ok {
			return fmt.Errorf("%s is not in the manifest", name)
		}
		return render(c, info)
	}

	res, err := st.Read(c.Context, name)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Payload)
}
