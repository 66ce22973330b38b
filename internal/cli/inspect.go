package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/ekisa-team/modelweb/internal/converter"
	"github.com/ekisa-team/modelweb/internal/model"
)

// InspectCmd prints what a loader reads from a model file.
type InspectCmd struct {
	Format string `long:"format" description:"Input format" choice:"auto" choice:"safetensors" choice:"gguf" choice:"onnx" default:"auto"`

	Args struct {
		Source string `positional-arg-name:"SOURCE" description:"Model file"`
	} `positional-args:"yes" required:"yes"`

	app *app
}

func (c *InspectCmd) Execute(_ []string) error {
	format := model.Format(c.Format)
	if c.Format == "auto" {
		format = model.FormatAuto
	}

	loader, err := converter.DefaultLoaders().Resolve(c.Args.Source, format)
	if err != nil {
		return err
	}

	m, err := loader.Load(c.app.ctx, c.Args.Source)
	if err != nil {
		return fmt.Errorf("load model %s: %w", c.Args.Source, err)
	}

	out := c.app.stdout
	fmt.Fprintf(out, "Format:   %s\n", m.Format)
	fmt.Fprintf(out, "Producer: %s\n", m.Producer)
	fmt.Fprintf(out, "Inputs:   %d\n", len(m.Topology.Inputs))
	fmt.Fprintf(out, "Outputs:  %d\n", len(m.Topology.Outputs))
	fmt.Fprintf(out, "Nodes:    %d\n", len(m.Topology.Nodes))
	fmt.Fprintf(out, "Tensors:  %d (%d bytes)\n\n", len(m.Tensors), m.WeightBytes())

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDTYPE\tSHAPE\tBYTES")
	for _, t := range m.Tensors {
		fmt.Fprintf(w, "%s\t%s\t%v\t%d\n", t.Name, t.DType, t.Shape, len(t.Data))
	}
	return w.Flush()
}
