// Command typefacegen converts a font binary into a typeface record
// JSON document, for consumption by 3D text-extrusion pipelines.
package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/tdewolff/argp"

	"github.com/glyphkit/typeface"
)

var (
	Error   *log.Logger
	Warning *log.Logger
)

func main() {
	Error = log.New(os.Stderr, "ERROR: ", 0)
	Warning = log.New(os.Stderr, "WARNING: ", 0)

	cmd := argp.New("Convert TTF/OTF/CFF2/WOFF fonts to typeface record JSON")
	cmd.AddCmd(&Generate{}, "generate", "Parse a font and emit its typeface record")
	cmd.Parse()
}

// Generate is the `typefacegen generate` subcommand.
type Generate struct {
	Index      int    `short:"i" desc:"Font index for TrueType Collections"`
	Characters string `short:"c" desc:"Restrict output to these characters; default is every character the cmap supports"`
	Output     string `short:"o" desc:"Output filename; defaults to stdout"`
	Input      string `index:"0" desc:"Input font file"`
}

func (cmd *Generate) Run() error {
	b, err := os.ReadFile(cmd.Input)
	if err != nil {
		return err
	}

	record, err := typeface.Parse(b, typeface.ParseOptions{
		FontIndex:  cmd.Index,
		Characters: cmd.Characters,
	})
	if err != nil {
		return err
	}
	if record.Meta.ErrorGlyphs > 0 {
		Warning.Printf("%d glyph(s) failed to decode and were emitted empty", record.Meta.ErrorGlyphs)
	}

	out := os.Stdout
	if cmd.Output != "" {
		f, err := os.Create(cmd.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}
