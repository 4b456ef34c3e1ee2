// Package cmd provides the Cobra commands for the jsonpns CLI.
package cmd

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/fluxbase-eu/jsonpns/cli/output"
	"github.com/fluxbase-eu/jsonpns/internal/asset"
	"github.com/fluxbase-eu/jsonpns/internal/config"
	"github.com/fluxbase-eu/jsonpns/internal/observability"
	"github.com/fluxbase-eu/jsonpns/internal/pipeline"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool

	// Shared across commands
	formatter *output.Formatter
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "jsonpns",
	Short: "jsonpns - Namespace the chunk-loading global of bundler output",
	Long: `jsonpns rewrites the JSONP chunk-loading global of webpack style bundles
so that a dotted name such as "my.app" becomes a nested namespace
(window.my.app) instead of a single property named "my.app".

Rewrites only touch the runtime fragments that reference the global, keep
every other byte and source map mapping, and never fail a build: assets
that cannot be rewritten are reported and left as they are.

Get started:
  jsonpns rewrite dist --global my.app   Rewrite a build output directory
  jsonpns watch dist --global my.app     Rewrite after every rebuild
  jsonpns --help                         Show available commands`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silence errors only when --quiet is used
		cmd.SilenceErrors = quiet
		setupLogging(debug, quiet)

		format, err := output.ParseFormat(outputFmt)
		if err != nil {
			return err
		}
		formatter = output.NewFormatter(format, noHeaders, quiet)
		formatter.Writer = cmd.OutOrStdout()
		return nil
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the CLI with ctx available to every command
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./jsonpns.yaml or ./config/jsonpns.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(shapesCmd)
}

// setupLogging configures the global zerolog logger for terminal output
func setupLogging(debug, quiet bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:     os.Stderr,
		NoColor: !term.IsTerminal(int(os.Stderr.Fd())),
	})

	switch {
	case debug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case quiet:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// addRewriteFlags registers the flags shared by rewrite and watch
func addRewriteFlags(flags *pflag.FlagSet) {
	flags.String("global", "", "dotted chunk-loading global, e.g. my.app")
	flags.String("chunk-loading", config.ChunkLoadingJSONP, "chunk loading strategy of the build; only jsonp is rewritten")
	flags.String("engine", "auto", "rewrite engine: template, ast, auto")
	flags.StringSlice("root", nil, "global objects the runtime addresses (default window, self, globalThis, this)")
	flags.StringSlice("include", nil, "glob patterns of assets to process")
	flags.Int("concurrency", 0, "parallel rewrites (0 = number of CPUs)")
	flags.Bool("verify", true, "re-parse rewritten output before accepting it")
	flags.Bool("cache", true, "remember results between batches")
}

// rewriteFlagKeys maps flag names to configuration keys
var rewriteFlagKeys = map[string]string{
	"global":        "rewrite.global",
	"chunk-loading": "rewrite.chunk_loading",
	"engine":        "rewrite.engine",
	"root":          "rewrite.roots",
	"include":       "rewrite.include",
	"concurrency":   "rewrite.concurrency",
	"verify":        "rewrite.verify",
	"cache":         "cache.enabled",
}

// loadConfig binds the command's flags into viper and loads the
// configuration. Only flags set on the command line override the file.
func loadConfig(cmd *cobra.Command, extra map[string]string) (*config.Config, error) {
	keys := make(map[string]string, len(rewriteFlagKeys)+len(extra))
	for flag, key := range rewriteFlagKeys {
		keys[flag] = key
	}
	for flag, key := range extra {
		keys[flag] = key
	}

	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return cfg, nil
}

// newStage builds the rewrite stage described by cfg
func newStage(cfg *config.Config, options ...pipeline.Option) (*pipeline.Stage, error) {
	rc := cfg.Rewrite
	return pipeline.New(pipeline.Options{
		Global:       rc.Global,
		ChunkLoading: rc.ChunkLoading,
		Engine:       asset.Engine(rc.Engine),
		Roots:        rc.Roots,
		Marker:       rc.Marker,
		LoaderNames:  rc.LoaderNames,
		Include:      rc.Include,
		Concurrency:  rc.Concurrency,
		Verify:       rc.Verify,
		Shapes:       rc.Shapes,
		CacheSize:    cfg.Cache.Size,
		DisableCache: !cfg.Cache.Enabled,
	}, options...)
}

// newTracer starts the tracer described by cfg, falling back to a noop
// tracer when the exporter cannot be created
func newTracer(ctx context.Context, cfg *config.Config) *observability.Tracer {
	tracer, err := observability.NewTracer(ctx, cfg.Tracing, Version)
	if err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
		return observability.NewNoopTracer()
	}
	return tracer
}
