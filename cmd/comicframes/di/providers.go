package di

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/do/v2"

	"github.com/omarluq/comicframes/internal/cache"
	"github.com/omarluq/comicframes/internal/config"
	"github.com/omarluq/comicframes/internal/detect"
	"github.com/omarluq/comicframes/internal/model"
	"github.com/omarluq/comicframes/internal/pdf"
	"github.com/omarluq/comicframes/internal/pipeline"
)

// Service wrapper types for DI registration.
// These provide type safety and allow distinguishing between similar types.

// ConfigService wraps the loaded configuration.
type ConfigService struct {
	Config *config.Config
}

// LoggerService wraps the zerolog logger for DI.
type LoggerService struct {
	Logger *zerolog.Logger
}

// CacheService wraps the multi-tier cache manager.
type CacheService struct {
	Manager *cache.Manager
}

// RegistryService wraps the model registry.
type RegistryService struct {
	Registry *model.Registry
}

// LoaderService wraps the model loader.
type LoaderService struct {
	Loader *model.Loader
}

// RasterizerService wraps the page rasterization stage.
type RasterizerService struct {
	Rasterizer *pdf.Rasterizer
}

// DetectorService wraps the frame detection stage.
type DetectorService struct {
	Detector *detect.FrameDetector
}

// PipelineService wraps the assembled extraction pipeline.
type PipelineService struct {
	Pipeline *pipeline.Pipeline
}

// RegisterSingletons registers all service providers as singletons.
// Services are registered in dependency order:
// 1. Config (no dependencies)
// 2. Logger (depends on Config)
// 3. Cache (depends on Config, Logger)
// 4. Registry (no dependencies)
// 5. Loader (depends on Config, Cache, Registry, Logger)
// 6. Rasterizer (depends on Config, Logger)
// 7. Detector (depends on Config, Logger)
// 8. Pipeline (depends on Cache, Rasterizer, Detector, Logger).
func RegisterSingletons(i do.Injector) {
	do.Provide(i, NewConfig)
	do.Provide(i, NewLogger)
	do.Provide(i, NewCache)
	do.Provide(i, NewRegistry)
	do.Provide(i, NewLoader)
	do.Provide(i, NewRasterizer)
	do.Provide(i, NewDetector)
	do.Provide(i, NewPipeline)
}

// NewConfig loads the configuration from the config path. An empty or missing
// path yields defaults plus environment overrides.
func NewConfig(i do.Injector) (*ConfigService, error) {
	path := do.MustInvokeNamed[string](i, ConfigPathKey)

	if path == "" {
		return &ConfigService{Config: config.FromEnv()}, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	return &ConfigService{Config: cfg}, nil
}

// NewLogger creates the zerolog logger from configuration.
func NewLogger(i do.Injector) (*LoggerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)

	logger, err := config.NewLogger(cfgSvc.Config.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &LoggerService{Logger: &logger}, nil
}

// NewCache creates the cache manager and installs it as the process default.
func NewCache(i do.Injector) (*CacheService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	cache.SetLogger(loggerSvc.Logger)

	manager, err := cache.NewManager(cfgSvc.Config.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache manager: %w", err)
	}
	cache.SetDefault(manager)

	return &CacheService{Manager: manager}, nil
}

// NewRegistry creates the model registry with the built-in model set.
func NewRegistry(do.Injector) (*RegistryService, error) {
	return &RegistryService{Registry: model.NewRegistry()}, nil
}

// NewLoader creates the model loader.
func NewLoader(i do.Injector) (*LoaderService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	cacheSvc := do.MustInvoke[*CacheService](i)
	registrySvc := do.MustInvoke[*RegistryService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	timeout := time.Duration(cfgSvc.Config.Models.DownloadTimeoutMS) * time.Millisecond
	loader := model.NewLoader(
		registrySvc.Registry,
		cacheSvc.Manager,
		cfgSvc.Config.Paths.ModelsDir,
		timeout,
		*loggerSvc.Logger,
	)

	return &LoaderService{Loader: loader}, nil
}

// NewRasterizer creates the page rasterization stage.
func NewRasterizer(i do.Injector) (*RasterizerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	r := pdf.NewRasterizer(cfgSvc.Config.Paths.DataDir, *loggerSvc.Logger)
	return &RasterizerService{Rasterizer: r}, nil
}

// NewDetector creates the frame detection stage.
func NewDetector(i do.Injector) (*DetectorService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	d := detect.NewFrameDetector(cfgSvc.Config.Detection, *loggerSvc.Logger)
	return &DetectorService{Detector: d}, nil
}

// NewPipeline assembles the extraction pipeline. The rasterization stage is
// gated on document-path input, so feeding pre-rendered pages skips it.
func NewPipeline(i do.Injector) (*PipelineService, error) {
	cacheSvc := do.MustInvoke[*CacheService](i)
	rasterSvc := do.MustInvoke[*RasterizerService](i)
	detectorSvc := do.MustInvoke[*DetectorService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	logger := *loggerSvc.Logger

	p := pipeline.New("comic_extraction", pipeline.WithPipelineLogger(logger)).
		AddStage(
			pipeline.NewProcessor(rasterSvc.Rasterizer,
				pipeline.WithManager(cacheSvc.Manager),
				pipeline.WithLogger(logger),
			),
			pipeline.WithStageName("rasterize"),
			pipeline.WithGate(isDocumentPath),
		).
		AddStage(
			pipeline.NewProcessor(detectorSvc.Detector,
				pipeline.WithManager(cacheSvc.Manager),
				pipeline.WithLogger(logger),
			),
			pipeline.WithStageName("detect"),
		)

	return &PipelineService{Pipeline: p}, nil
}

// isDocumentPath reports whether the pipeline input is a PDF document path.
func isDocumentPath(input any) bool {
	s, ok := input.(string)
	return ok && strings.EqualFold(filepath.Ext(s), ".pdf")
}
