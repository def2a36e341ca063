/**
 * Application wiring shared by the worker and the CLI
 *
 * Builds the translation core from configuration:
 * stores -> pack registry -> mode arbiter (+ connectivity probe) ->
 * recognizers -> translation service -> photo processor pool.
 */

package app

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/phototranslate-worker/internal/clients"
	"github.com/adverant/nexus/phototranslate-worker/internal/config"
	"github.com/adverant/nexus/phototranslate-worker/internal/connectivity"
	"github.com/adverant/nexus/phototranslate-worker/internal/geometry"
	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
	"github.com/adverant/nexus/phototranslate-worker/internal/mode"
	"github.com/adverant/nexus/phototranslate-worker/internal/ocr"
	"github.com/adverant/nexus/phototranslate-worker/internal/ocr/tesseract"
	"github.com/adverant/nexus/phototranslate-worker/internal/ondevice"
	"github.com/adverant/nexus/phototranslate-worker/internal/overlay"
	"github.com/adverant/nexus/phototranslate-worker/internal/packs"
	"github.com/adverant/nexus/phototranslate-worker/internal/processor"
	"github.com/adverant/nexus/phototranslate-worker/internal/queue"
	"github.com/adverant/nexus/phototranslate-worker/internal/storage"
	"github.com/adverant/nexus/phototranslate-worker/internal/translation"
	"github.com/adverant/nexus/phototranslate-worker/internal/voices"
)

const registryKeyPrefix = "phototranslate:"

// Options adjusts what Build wires.
type Options struct {
	// Preference overrides cfg.Mode.Preference when set.
	Preference string
	// Events publishes job, mode and pack events to Redis.
	Events bool
	// PoolSize overrides cfg.WorkerConcurrency when > 0.
	PoolSize int
}

// App is the assembled translation core
type App struct {
	Config      *config.Config
	Storage     *storage.StorageManager
	Models      *ondevice.ModelManager
	Registry    *packs.Registry
	Arbiter     *mode.Arbiter
	Probe       *connectivity.Probe
	Translation *translation.Service
	Processor   *processor.Pool
	Events      *queue.EventPublisher
	Voices      *voices.Catalog

	baseline []langid.ID
	logger   *logging.Logger
	cleanup  []func()
}

// Build wires every component from cfg
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := logging.NewLogger("app")
	a := &App{Config: cfg, logger: logger}

	baseline, err := langid.CanonicalizeAll(cfg.BaselineLanguages)
	if err != nil {
		return nil, fmt.Errorf("invalid baseline languages: %w", err)
	}
	a.baseline = baseline

	prefRaw := cfg.Mode.Preference
	if opts.Preference != "" {
		prefRaw = opts.Preference
	}
	pref, err := mode.ParsePreference(prefRaw)
	if err != nil {
		return nil, err
	}

	var pivot langid.ID
	if cfg.OnDevice.PivotLanguage != "" {
		if pivot, err = langid.Canonicalize(cfg.OnDevice.PivotLanguage); err != nil {
			return nil, fmt.Errorf("invalid pivot language: %w", err)
		}
	}

	// Storage
	storeOpts := storage.Options{
		DatabaseURL:   cfg.DatabaseURL,
		RegistryStore: cfg.RegistryStore,
		KeyPrefix:     registryKeyPrefix,
	}
	if opts.Events || cfg.RegistryStore == storage.BackendRedis {
		storeOpts.RedisURL = cfg.RedisURL
	}
	a.Storage, err = storage.NewStorageManager(ctx, storeOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.cleanup = append(a.cleanup, func() { _ = a.Storage.Close() })

	// Language packs
	runtime := clients.NewRuntimeClient(cfg.OnDevice.TranslateURL)
	a.Models, err = ondevice.NewModelManager(cfg.Tessdata.Dir, cfg.Tessdata.BaseURL,
		ondevice.WithRuntime(runtime),
		ondevice.WithLogger(logging.NewLogger("ModelManager")))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Registry = packs.NewRegistry(a.Models, a.Storage.RegistryStore(), logging.NewLogger("packs"))
	if err := a.Registry.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}

	// Mode
	onDeviceTranslator := translation.NewOnDeviceTranslator(runtime, a.Registry, pivot)

	a.Probe = connectivity.NewProbe(cfg.Connectivity.ProbeURL, cfg.Connectivity.Interval, logging.NewLogger("connectivity"))
	online := cfg.CloudEnabled()
	if cfg.Connectivity.ProbeURL != "" {
		online = a.Probe.Check(ctx)
	}

	a.Arbiter = mode.NewArbiter(a.Registry, onDeviceTranslator, pref, online, logging.NewLogger("mode"))
	a.Probe.OnChange(a.Arbiter.OnConnectivityChanged)
	a.cleanup = append(a.cleanup, a.Registry.Subscribe(func(packs.ChangeEvent) { a.Arbiter.OnPacksChanged() }))

	if opts.Events && a.Storage.Redis() != nil {
		a.Events = queue.NewEventPublisher(a.Storage.Redis(), cfg.QueueName, logging.NewLogger("events"))
		a.cleanup = append(a.cleanup,
			a.Arbiter.Subscribe(a.Events.ModeObserver()),
			a.Registry.Subscribe(a.Events.PacksObserver()))
	}

	// Engines. Interfaces stay nil when the cloud side is not configured.
	var (
		cloudOCR        ocr.Recognizer
		cloudTranslator translation.Engine
	)
	if cfg.CloudEnabled() {
		cloudOCR = ocr.NewCloudRecognizer(
			clients.NewVisionClient(cfg.Cloud.VisionURL, cfg.Cloud.APIKey),
			cfg.OCR.MaxDimension,
			logging.NewLogger("CloudOCR"))
		cloudTranslator = translation.NewCloudTranslator(
			clients.NewTranslateClient(cfg.Cloud.TranslateURL, cfg.Cloud.APIKey))
	}
	onDeviceOCR := tesseract.NewRecognizer(tesseract.Config{
		TessdataDir:   cfg.Tessdata.Dir,
		MaxDimension:  cfg.OCR.MaxDimension,
		MinConfidence: cfg.OCR.MinConfidence,
	}, logging.NewLogger("TesseractOCR"))

	svcOpts := []translation.ServiceOption{translation.WithLogger(logging.NewLogger("translation"))}
	if cfg.Cache.Size > 0 {
		svcOpts = append(svcOpts, translation.WithCache(translation.NewCache(cfg.Cache.Size, cfg.Cache.TTL)))
	}
	a.Translation = translation.NewService(a.Arbiter, onDeviceTranslator, cloudTranslator, svcOpts...)

	// Photo pipeline
	procLogger := logging.NewLogger("processor")
	pcfg := &processor.ProcessorConfig{
		Arbiter:     a.Arbiter,
		Packs:       a.Registry,
		OnDeviceOCR: onDeviceOCR,
		CloudOCR:    cloudOCR,
		Translator:  a.Translation,
		Corrector:   geometry.NewCorrector(procLogger),
		Layout: &overlay.Engine{
			MaxPrimary:  cfg.Overlay.MaxPrimary,
			MinFontSize: cfg.Overlay.MinFontSize,
			HeightRatio: cfg.Overlay.HeightRatio,
			WidthFactor: cfg.Overlay.WidthFactor,
		},
		Store:           a.Storage,
		TranslateFanout: cfg.TranslateFanout,
		Logger:          procLogger,
	}
	if a.Events != nil {
		pcfg.Events = a.Events
	}
	size := cfg.WorkerConcurrency
	if opts.PoolSize > 0 {
		size = opts.PoolSize
	}
	a.Processor, err = processor.NewPool(pcfg, size)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Voices.File != "" {
		if a.Voices, err = voices.Load(cfg.Voices.File); err != nil {
			a.Close()
			return nil, err
		}
	}

	logger.Info("Translation core ready",
		"preference", pref,
		"online", online,
		"cloud", cfg.CloudEnabled(),
		"installed", len(a.Registry.InstalledSet()),
		"processors", a.Processor.Size())
	return a, nil
}

// Run polls connectivity and primes baseline packs until ctx is done.
func (a *App) Run(ctx context.Context) {
	go a.Probe.Run(ctx)
	go a.EnsureBaseline(ctx)
}

// EnsureBaseline installs the configured baseline languages.
func (a *App) EnsureBaseline(ctx context.Context) packs.BaselineReport {
	report := a.Registry.EnsureBaseline(ctx, a.baseline)
	for id, err := range report.Failed {
		a.logger.Warn("Baseline language not installed", "language", id, "error", err)
	}
	a.logger.Info("Baseline languages checked",
		"installed", len(report.Installed),
		"present", len(report.Present),
		"failed", len(report.Failed))
	return report
}

// Close unsubscribes observers and releases stores. Safe to call twice.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}
