// Package model provides the model registry and loader: named model
// configurations, on-demand download with a circuit breaker, and
// materialization through the model cache namespace.
package model

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Type classifies what a model is used for.
type Type string

// Known model types.
const (
	TypeFrameDetection     Type = "frame_detection"
	TypeFrameInterpolation Type = "frame_interpolation"
	TypeObjectDetection    Type = "object_detection"
	TypeSpeechBubbleDetect Type = "speech_bubble_detection"
)

// Config describes one registered model.
type Config struct {
	// Name identifies the model in the registry.
	Name string `json:"name"`

	Type Type `json:"type"`

	// FileName is the model's file name under the models directory, empty
	// for models that need no local weights.
	FileName string `json:"file_name,omitempty"`

	// DownloadURL is where the weights can be fetched from, empty when the
	// model ships no downloadable artifact.
	DownloadURL string `json:"download_url,omitempty"`

	InputSize [2]int `json:"input_size"`
	BatchSize int    `json:"batch_size"`
	Device    string `json:"device"`

	// Settings carries model-specific parameters.
	Settings map[string]any `json:"settings,omitempty"`
}

// Registry holds model configurations by name. The zero value is not usable;
// construct with NewRegistry, which seeds the default models.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Config
}

// NewRegistry creates a registry seeded with the built-in model set.
func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]Config)}

	r.Register(Config{
		Name:        "rife_v4.6",
		Type:        TypeFrameInterpolation,
		FileName:    "rife_v4.6_flownet.pkl",
		DownloadURL: "https://github.com/megvii-research/ECCV2022-RIFE/releases/download/v4.6/flownet.pkl",
		InputSize:   [2]int{640, 640},
		BatchSize:   1,
		Device:      "auto",
		Settings: map[string]any{
			"scale":          1.0,
			"fps_multiplier": 2,
			"uhd":            false,
		},
	})

	r.Register(Config{
		Name:      "film_net",
		Type:      TypeFrameInterpolation,
		InputSize: [2]int{640, 640},
		BatchSize: 1,
		Device:    "auto",
		Settings: map[string]any{
			"model_path": "google/frame-interpolation",
			"model_type": "film_net",
		},
	})

	r.Register(Config{
		Name:      "yolov3",
		Type:      TypeObjectDetection,
		InputSize: [2]int{416, 416},
		BatchSize: 1,
		Device:    "auto",
		Settings: map[string]any{
			"confidence_threshold": 0.5,
			"nms_threshold":        0.4,
		},
	})

	// Built-in geometric detector, no weights to fetch.
	r.Register(Config{
		Name:      "threshold_components",
		Type:      TypeFrameDetection,
		InputSize: [2]int{640, 640},
		BatchSize: 1,
		Device:    "cpu",
		Settings: map[string]any{
			"method":   "threshold",
			"min_area": 1000,
			"max_area": 1000000,
		},
	})

	return r
}

// Register adds or replaces a model configuration.
func (r *Registry) Register(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[cfg.Name] = cfg
}

// Get returns the configuration for a model name.
func (r *Registry) Get(name string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.models[name]
	return cfg, ok
}

// List returns all registered models sorted by name. A non-empty type filter
// restricts the result to that model type.
func (r *Registry) List(filter Type) []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	configs := lo.Filter(lo.Values(r.models), func(c Config, _ int) bool {
		return filter == "" || c.Type == filter
	})
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs
}

// DefaultFor returns the default model for a type, if one is designated.
func (r *Registry) DefaultFor(t Type) (Config, bool) {
	defaults := map[Type]string{
		TypeFrameDetection:     "threshold_components",
		TypeFrameInterpolation: "rife_v4.6",
		TypeObjectDetection:    "yolov3",
	}
	name, ok := defaults[t]
	if !ok {
		return Config{}, false
	}
	return r.Get(name)
}
