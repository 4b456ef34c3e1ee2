package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/jsonpns/internal/config"
	"github.com/fluxbase-eu/jsonpns/internal/hostfs"
	"github.com/fluxbase-eu/jsonpns/internal/observability"
	"github.com/fluxbase-eu/jsonpns/internal/pipeline"
	"github.com/fluxbase-eu/jsonpns/internal/server"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Rewrite a build output directory after every rebuild",
	Long: `Rewrite every matching asset below <dir>, then watch the directory and
rewrite again whenever the bundler writes new output.

With --listen a status server exposes /health, /metrics and /diagnostics.

Examples:
  jsonpns watch dist --global my.app
  jsonpns watch dist --global my.app --listen :9464 --debounce 500ms`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	addRewriteFlags(watchCmd.Flags())
	watchCmd.Flags().Bool("dry-run", false, "report what would change without writing files")
	watchCmd.Flags().String("listen", "", "address of the status server, e.g. :9464 (disabled when empty)")
	watchCmd.Flags().Duration("debounce", 250*time.Millisecond, "quiet period before a rebuild is processed")
}

var watchFlagKeys = map[string]string{
	"dry-run":  "watch.dry_run",
	"listen":   "server.address",
	"debounce": "watch.debounce",
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]

	cfg, err := loadConfig(cmd, watchFlagKeys)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	tracer := newTracer(ctx, cfg)
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	metrics := observability.NewMetrics(nil)
	stage, err := newStage(cfg, pipeline.WithTracer(tracer), pipeline.WithMetrics(metrics))
	if err != nil {
		return err
	}

	var srv *server.Server
	if cfg.Server.Enabled() {
		srv = server.New(cfg.Server, stage, metrics, Version, cfg.Debug)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Status server stopped")
			}
		}()
		defer shutdownServer(srv)
	}

	run := func(ctx context.Context) error {
		return processDir(ctx, dir, stage, srv, cfg.Watch)
	}

	if err := run(ctx); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("Initial rewrite failed")
	}
	return hostfs.Watch(ctx, dir, cfg.Watch.Debounce, run)
}

// processDir runs one batch over dir and writes the changed assets back
func processDir(ctx context.Context, dir string, stage *pipeline.Stage, srv *server.Server, wc config.WatchConfig) error {
	assets, err := hostfs.Load(dir, stage.Includes)
	if err != nil {
		return err
	}

	out, err := stage.ProcessAssets(ctx, assets)
	if srv != nil {
		srv.Record(out)
	}
	if err != nil {
		return err
	}

	for _, d := range out.Diagnostics {
		formatter.PrintWarning(d.Error())
	}
	if wc.DryRun {
		return nil
	}

	written, err := hostfs.Write(dir, out.Results)
	if err != nil {
		return err
	}
	if written > 0 {
		log.Info().Str("batch_id", out.BatchID).Int("written", written).Msg("Rewritten assets written")
	}
	return nil
}

func shutdownServer(srv *server.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Status server forced to shutdown")
	}
}
