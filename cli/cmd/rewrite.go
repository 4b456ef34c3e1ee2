package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/jsonpns/cli/output"
	"github.com/fluxbase-eu/jsonpns/internal/asset"
	"github.com/fluxbase-eu/jsonpns/internal/diagnostics"
	"github.com/fluxbase-eu/jsonpns/internal/hostfs"
	"github.com/fluxbase-eu/jsonpns/internal/observability"
	"github.com/fluxbase-eu/jsonpns/internal/pipeline"
)

var (
	rewriteDryRun bool
	rewriteStrict bool
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <dir>",
	Short: "Rewrite the chunk-loading global of a build output directory",
	Long: `Rewrite every matching asset below <dir> once.

Assets that cannot be parsed or rewritten are reported as diagnostics and
left untouched. Diagnostics only fail the command with --strict.

Examples:
  jsonpns rewrite dist --global my.app
  jsonpns rewrite dist --global my.app --engine ast --dry-run
  jsonpns rewrite dist -o json --strict`,
	Args: cobra.ExactArgs(1),
	RunE: runRewrite,
}

func init() {
	addRewriteFlags(rewriteCmd.Flags())
	rewriteCmd.Flags().BoolVar(&rewriteDryRun, "dry-run", false, "report what would change without writing files")
	rewriteCmd.Flags().BoolVar(&rewriteStrict, "strict", false, "exit with an error when diagnostics were recorded")
}

// rewriteReport is the structured output of the rewrite command
type rewriteReport struct {
	BatchID     string                   `json:"batch_id" yaml:"batch_id"`
	Results     []asset.Result           `json:"results" yaml:"results"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics" yaml:"diagnostics"`
	Stats       pipeline.Stats           `json:"stats" yaml:"stats"`
	Written     int                      `json:"written" yaml:"written"`
	DryRun      bool                     `json:"dry_run" yaml:"dry_run"`
}

func runRewrite(cmd *cobra.Command, args []string) error {
	dir := args[0]

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	tracer := newTracer(ctx, cfg)
	defer func() { _ = tracer.Shutdown(ctx) }()

	stage, err := newStage(cfg, pipeline.WithTracer(tracer))
	if err != nil {
		return err
	}

	assets, err := hostfs.Load(dir, stage.Includes)
	if err != nil {
		return err
	}

	out, err := stage.ProcessAssets(ctx, assets)
	if err != nil {
		return err
	}

	written := 0
	if !rewriteDryRun {
		written, err = hostfs.Write(dir, out.Results)
		if err != nil {
			return err
		}
	}

	if formatter.Structured() {
		if err := formatter.Print(rewriteReport{
			BatchID:     out.BatchID,
			Results:     out.Results,
			Diagnostics: out.Diagnostics,
			Stats:       out.Stats,
			Written:     written,
			DryRun:      rewriteDryRun,
		}); err != nil {
			return err
		}
	} else {
		formatter.PrintTable(resultsTable(out))
		for _, d := range out.Diagnostics {
			formatter.PrintWarning(d.Error())
		}
		formatter.PrintSuccess(summary(out, written, rewriteDryRun))
	}

	if rewriteStrict && len(out.Diagnostics) > 0 {
		return fmt.Errorf("%d asset(s) could not be rewritten: %w", len(out.Diagnostics), out.Err())
	}
	return nil
}

// resultsTable lists every processed asset with its outcome
func resultsTable(out *pipeline.Output) output.TableData {
	failed := make(map[string]bool, len(out.Diagnostics))
	for _, d := range out.Diagnostics {
		failed[d.File] = true
	}

	data := output.TableData{Headers: []string{"FILE", "STATUS", "ENGINE", "MATCHED"}}
	for _, r := range out.Results {
		data.Rows = append(data.Rows, []string{
			r.Asset.Name,
			status(r, failed[r.Asset.Name]),
			string(r.Engine),
			strings.Join(r.Matched, ","),
		})
	}
	return data
}

func status(r asset.Result, failed bool) string {
	switch {
	case failed:
		return observability.OutcomeFailed
	case r.Engine == asset.EngineNone:
		return observability.OutcomeSkipped
	case r.Cached:
		return observability.OutcomeCached
	case r.Changed:
		return observability.OutcomeChanged
	default:
		return observability.OutcomeUnchanged
	}
}

func summary(out *pipeline.Output, written int, dryRun bool) string {
	s := out.Stats
	msg := fmt.Sprintf("%d asset(s): %d changed, %d unchanged, %d cached, %d failed, %d skipped in %s",
		s.Total, s.Changed, s.Unchanged, s.Cached, s.Failed, s.Skipped, s.Duration.Round(time.Microsecond))
	if dryRun {
		return msg + " (dry run, nothing written)"
	}
	return fmt.Sprintf("%s, %d file(s) written", msg, written)
}
