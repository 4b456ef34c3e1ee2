package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/jsonpns/cli/output"
	"github.com/fluxbase-eu/jsonpns/internal/nspath"
	"github.com/fluxbase-eu/jsonpns/internal/template"
)

var (
	shapesGlobal string
	shapesRoot   string
)

var shapesCmd = &cobra.Command{
	Use:   "shapes",
	Short: "List the runtime fragments the template engine recognises",
	Long: `List the versioned table of literal fragments the template engine looks
for. With --global every pattern is rendered for that global.

Examples:
  jsonpns shapes
  jsonpns shapes --global my.app --root self`,
	Args: cobra.NoArgs,
	RunE: runShapes,
}

func init() {
	shapesCmd.Flags().StringVar(&shapesGlobal, "global", "", "render the patterns for this global")
	shapesCmd.Flags().StringVar(&shapesRoot, "root", "window", "global object used when rendering")
}

func runShapes(cmd *cobra.Command, args []string) error {
	shapes := template.Table()

	access := "%[1]s"
	if shapesGlobal != "" {
		p, err := nspath.Parse(shapesGlobal)
		if err != nil {
			return err
		}
		access = p.Bracket(shapesRoot)
	}

	if formatter.Structured() && shapesGlobal == "" {
		return formatter.Print(shapes)
	}

	data := output.TableData{Headers: []string{"ID", "KIND", "PATTERN"}}
	for _, s := range shapes {
		pattern := s.Pattern
		if shapesGlobal != "" {
			pattern = s.Render(access)
		}
		data.Rows = append(data.Rows, []string{s.ID(), string(s.Kind), pattern})
	}
	formatter.PrintTable(data)
	return nil
}
