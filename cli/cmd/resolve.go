package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/jsonpns/internal/nspath"
)

var (
	resolveRoot string
	resolveMode string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Show the code generated for a dotted global",
	Long: `Print the initializer statements and the access expression produced for
a dotted chunk-loading global.

Examples:
  jsonpns resolve my.app.chunks
  jsonpns resolve my.app --root self --mode safe-read -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveRoot, "root", "window", "global object the access starts from (empty for bare paths)")
	resolveCmd.Flags().StringVar(&resolveMode, "mode", "mutating-init", "mutating-init or safe-read")
}

// resolveReport is the structured output of the resolve command
type resolveReport struct {
	Name         string   `json:"name" yaml:"name"`
	Root         string   `json:"root" yaml:"root"`
	Mode         string   `json:"mode" yaml:"mode"`
	Segments     []string `json:"segments" yaml:"segments"`
	Initializers []string `json:"initializers" yaml:"initializers"`
	Access       string   `json:"access" yaml:"access"`
	Bracket      string   `json:"bracket" yaml:"bracket"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	mode, err := nspath.ParseMode(resolveMode)
	if err != nil {
		return err
	}

	res, err := nspath.Resolve(args[0], resolveRoot, mode)
	if err != nil {
		return err
	}

	if formatter.Structured() {
		initializers := res.Initializers
		if initializers == nil {
			initializers = []string{}
		}
		return formatter.Print(resolveReport{
			Name:         args[0],
			Root:         resolveRoot,
			Mode:         mode.String(),
			Segments:     res.Path,
			Initializers: initializers,
			Access:       res.Access,
			Bracket:      res.Path.Bracket(resolveRoot),
		})
	}

	formatter.PrintList(append(res.Initializers, res.Access))
	return nil
}
