package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/atlaspack/pkg/layout"
)

// slotJSON is the JSON form of one slot printed by "layout --json".
type slotJSON struct {
	Index  int        `json:"index"`
	Row    int        `json:"row"`
	Col    int        `json:"col"`
	X      int        `json:"x"`
	Y      int        `json:"y"`
	UV     [4]float64 `json:"uv"`
	Source string     `json:"source"`
	Label  string     `json:"label,omitempty"`
}

// layoutCommand creates the layout command.
func (c *CLI) layoutCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "layout [manifest.toml]",
		Short: "Print slot origins and UV rectangles",
		Long: `Print slot origins and UV rectangles.

For every slot the row, column, pixel origin and normalized UV rectangle
are listed together with the source that fills it. Renderers use the UV
rectangles to sample a block face from the atlas.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(manifestArg(args))
			if err != nil {
				return err
			}
			grid, err := layout.New(m.GridWidth, m.GridHeight, m.TileSize)
			if err != nil {
				return err
			}
			if asJSON {
				return writeLayoutJSON(cmd.OutOrStdout(), grid, m.SourceIDs(), m.Labels())
			}

			b := grid.Bounds()
			printKeyValue("Grid", fmt.Sprintf("%d x %d slots", grid.GridWidth(), grid.GridHeight()))
			printKeyValue("Tile", fmt.Sprintf("%d px", grid.TileSize()))
			printKeyValue("Atlas", fmt.Sprintf("%d x %d px", b.Dx(), b.Dy()))
			writeSlotTable(os.Stdout, grid, m.SourceIDs(), m.Labels())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print slots as JSON")

	return cmd
}

func writeLayoutJSON(w io.Writer, grid *layout.Grid, sources, labels []string) error {
	slots := make([]slotJSON, 0, grid.SlotCount())
	for _, s := range grid.Slots() {
		sj := slotJSON{
			Index: s.Index,
			Row:   s.Row,
			Col:   s.Col,
			X:     s.Origin.X,
			Y:     s.Origin.Y,
			UV:    grid.UV(s.Index),
		}
		if s.Index < len(sources) {
			sj.Source = sources[s.Index]
		}
		if s.Index < len(labels) {
			sj.Label = labels[s.Index]
		}
		slots = append(slots, sj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(slots)
}
