package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omarluq/comicframes/cmd/comicframes/di"
	"github.com/omarluq/comicframes/internal/config"
	"github.com/omarluq/comicframes/internal/detect"
	"github.com/omarluq/comicframes/internal/pipeline"
	"github.com/omarluq/comicframes/internal/watch"
)

var watchFlags struct {
	debounce time.Duration
}

var watchCmd = &cobra.Command{
	Use:   "watch <directory>",
	Short: "Watch a directory and extract frames from new documents",
	Long: `Watch a directory for new or updated PDF documents and run the extraction
pipeline on each. Change bursts are debounced so a document still being
copied in is processed once, after it settles. Edits to the config file take
effect on the next document without a restart.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchFlags.debounce, "debounce", 2*time.Second, "wait this long after the last change before processing")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(configPath())
	if err != nil {
		return err
	}
	defer shutdownContainer(container)

	pipelineSvc, err := di.Invoke[*di.PipelineService](container)
	if err != nil {
		return err
	}
	cfgSvc, err := di.Invoke[*di.ConfigService](container)
	if err != nil {
		return err
	}

	runtime := config.NewRuntime(cfgSvc.Config)
	if path := configPath(); path != "" {
		reloader, err := watchConfig(ctx, path, runtime)
		if err != nil {
			log.Warn().Err(err).Str("config", path).Msg("config reload unavailable")
		} else {
			defer closeWatcher(reloader)
		}
	}

	watcher, err := watch.New(args[0],
		watch.WithDebounceDelay(watchFlags.debounce),
		watch.WithFilter(func(path string) bool {
			return strings.EqualFold(filepath.Ext(path), ".pdf")
		}),
	)
	if err != nil {
		return err
	}
	defer closeWatcher(watcher)

	watcher.OnChange(func(path string) error {
		result := pipelineSvc.Pipeline.Process(ctx, path, detectionParams(runtime))
		if !result.Success {
			return fmt.Errorf("extraction failed: %s", result.Message)
		}
		log.Info().
			Str("document", path).
			Dur("elapsed", result.Duration).
			Msg("document processed")
		return nil
	})

	fmt.Printf("Watching %s for documents (ctrl-c to stop)\n", watcher.Path())
	return watcher.Watch(ctx)
}

// watchConfig starts a watcher that reloads the config file into the runtime
// store on change. A broken edit keeps the previous configuration.
func watchConfig(ctx context.Context, path string, runtime *config.Runtime) (*watch.Watcher, error) {
	reloader, err := watch.New(path)
	if err != nil {
		return nil, err
	}
	reloader.OnChange(func(p string) error {
		cfg, err := config.Load(p)
		if err != nil {
			return fmt.Errorf("config not reloaded: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config not reloaded: %w", err)
		}
		runtime.Store(cfg)
		log.Info().Str("config", p).Msg("configuration reloaded")
		return nil
	})
	go func() {
		if err := reloader.Watch(ctx); err != nil {
			log.Error().Err(err).Msg("config watcher stopped")
		}
	}()
	return reloader, nil
}

// detectionParams reads the current detection settings per run so config
// reloads apply to the next document.
func detectionParams(runtime *config.Runtime) pipeline.Params {
	det := runtime.Get().Detection
	params := pipeline.Params{
		detect.ParamMethod: det.GetEffectiveMethod(),
	}
	if det.MinFrameWidth > 0 {
		params[detect.ParamMinWidth] = det.MinFrameWidth
	}
	if det.MinFrameHeight > 0 {
		params[detect.ParamMinHeight] = det.MinFrameHeight
	}
	return params
}

func closeWatcher(w *watch.Watcher) {
	if err := w.Close(); err != nil {
		log.Error().Err(err).Msg("watcher close error")
	}
}
