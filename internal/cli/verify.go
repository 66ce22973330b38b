package cli

import (
	"fmt"

	"github.com/ekisa-team/modelweb/internal/tfjs"
)

// VerifyCmd checks a bundle directory.
type VerifyCmd struct {
	Args struct {
		Destination string `positional-arg-name:"DEST" description:"Bundle directory"`
	} `positional-args:"yes" required:"yes"`

	app *app
}

func (c *VerifyCmd) Execute(_ []string) error {
	report, err := tfjs.NewStore(nil).Verify(c.app.ctx, c.Args.Destination)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.app.stdout, "Bundle OK: %s, %d weights in %d shards (%d bytes)\n",
		report.Format, report.Weights, report.Shards, report.Bytes)
	return nil
}

// VersionCmd prints the version.
type VersionCmd struct {
	app *app
}

func (c *VersionCmd) Execute(_ []string) error {
	fmt.Fprintf(c.app.stdout, "modelweb %s\n", Version)
	return nil
}
