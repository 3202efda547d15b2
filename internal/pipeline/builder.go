package pipeline

import (
	"fmt"
	"io"

	"imgcluster/internal/features"
	"imgcluster/internal/logger"
	"imgcluster/internal/organize"
	"imgcluster/internal/scan"
	"imgcluster/internal/store"
)

// Builder helps construct a fully configured Pipeline
type Builder struct {
	dataDir    string
	config     *Config
	extensions []string
	extractor  features.Extractor
	organizer  *organize.Organizer
	out        io.Writer
	skipStore  bool
}

// NewBuilder creates a new pipeline builder with default settings
func NewBuilder() *Builder {
	return &Builder{
		dataDir:    ".imgcluster-cache",
		config:     DefaultConfig(),
		extensions: scan.DefaultExtensions,
		organizer:  organize.NewOrganizer(),
	}
}

// WithDataDir sets the directory holding the feature cache and run history
func (b *Builder) WithDataDir(dir string) *Builder {
	b.dataDir = dir
	return b
}

// WithConfig sets the pipeline configuration
func (b *Builder) WithConfig(config *Config) *Builder {
	b.config = config
	return b
}

// WithExtensions sets the file extensions to scan for
func (b *Builder) WithExtensions(extensions []string) *Builder {
	b.extensions = extensions
	return b
}

// WithExtractor replaces the default brightness/contrast/noise extractor
func (b *Builder) WithExtractor(extractor features.Extractor) *Builder {
	b.extractor = extractor
	return b
}

// WithOrganizer sets the output directory naming
func (b *Builder) WithOrganizer(organizer *organize.Organizer) *Builder {
	b.organizer = organizer
	return b
}

// WithOutput sets where progress is printed
func (b *Builder) WithOutput(out io.Writer) *Builder {
	b.out = out
	return b
}

// WithoutCache disables feature caching; runs are still recorded
func (b *Builder) WithoutCache() *Builder {
	if b.config != nil {
		b.config.CacheEnabled = false
	}
	return b
}

// WithoutStore disables both the feature cache and the run history
func (b *Builder) WithoutStore() *Builder {
	b.skipStore = true
	return b.WithoutCache()
}

// Build constructs a fully configured Pipeline. The returned store is nil
// when persistence is disabled or could not be opened; callers close it.
func (b *Builder) Build() (*Pipeline, *store.Store, error) {
	if b.config == nil {
		b.config = DefaultConfig()
	}
	if b.config.Workers < 0 {
		return nil, nil, fmt.Errorf("workers must be >= 0, got %d", b.config.Workers)
	}

	scanner := NewScannerAdapter(b.extensions)
	extractor := NewExtractorAdapter(b.extractor)

	organizer := b.organizer
	if organizer == nil {
		organizer = organize.NewOrganizer()
	}

	// Initialize store (optional)
	var st *store.Store
	var cache CacheManager
	var recorder RunRecorder
	if !b.skipStore && b.dataDir != "" {
		s, err := store.NewStore(b.dataDir)
		if err != nil {
			// Non-fatal: log warning and continue without cache or history
			logger.Warn("Failed to open feature cache, continuing without it", "dir", b.dataDir, "error", err.Error())
			b.config.CacheEnabled = false
		} else {
			st = s
			cache = s
			recorder = s
		}
	}

	pipeline := NewPipeline(
		scanner,
		extractor,
		organizer,
		cache,
		recorder,
		b.config,
		b.out,
	)

	return pipeline, st, nil
}
