package cli

import (
	"fmt"

	"github.com/ekisa-team/modelweb/internal/converter"
	"github.com/ekisa-team/modelweb/internal/model"
	"github.com/ekisa-team/modelweb/internal/tensor"
	"github.com/ekisa-team/modelweb/internal/tfjs"
)

// ConvertCmd converts one model file.
type ConvertCmd struct {
	Format    string `long:"format"     description:"Input format"                 choice:"auto" choice:"safetensors" choice:"gguf" choice:"onnx" default:"auto"`
	ShardSize int64  `long:"shard-size" description:"Maximum shard size in bytes"  default:"4194304"`
	Quantize  string `long:"quantize"   description:"Store float weights with fewer bits" choice:"none" choice:"float16" choice:"uint8" default:"none"`
	Group     int    `long:"group"      description:"Weight group number used in shard names" default:"1"`

	Args struct {
		Source      string `positional-arg-name:"SOURCE" description:"Model file"`
		Destination string `positional-arg-name:"DEST"   description:"Bundle directory"`
	} `positional-args:"yes" required:"yes"`

	app *app
}

func (c *ConvertCmd) Execute(_ []string) error {
	if c.ShardSize <= 0 {
		return fmt.Errorf("%w: %d", tfjs.ErrInvalidShardSize, c.ShardSize)
	}

	quant, err := tensor.ParseQuantization(c.Quantize)
	if err != nil {
		return err
	}

	format := model.Format(c.Format)
	if c.Format == "auto" {
		format = model.FormatAuto
	}

	res, err := c.app.converter().Convert(c.app.ctx, converter.Request{
		Source:       c.Args.Source,
		Destination:  c.Args.Destination,
		Format:       format,
		ShardSize:    c.ShardSize,
		Quantization: quant,
		Group:        c.Group,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.app.stderr, "Wrote %d files (%d weight bytes) to %s\n", len(res.Files), res.Bytes, c.Args.Destination)
	fmt.Fprintln(c.app.stdout, completionMessage)
	return nil
}
