/**
 * Photo Processor for the PhotoTranslate Worker
 *
 * Runs one photo through the translation pipeline:
 * - OCR engine chosen from the resolved mode (Tesseract offline, cloud vision online)
 * - Per-text translation with bounded fan-out; a failed text keeps its original
 * - Geometry correction from the analyzed image onto the displayed photo
 * - Overlay layout for a viewport
 *
 * One photo is in flight per processor. A trigger that arrives while a photo
 * is being processed is dropped with PIPELINE_BUSY.
 */

package processor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/geometry"
	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
	"github.com/adverant/nexus/phototranslate-worker/internal/mode"
	"github.com/adverant/nexus/phototranslate-worker/internal/ocr"
	"github.com/adverant/nexus/phototranslate-worker/internal/overlay"
	"github.com/adverant/nexus/phototranslate-worker/internal/storage"
	"github.com/adverant/nexus/phototranslate-worker/internal/translation"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Job statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const defaultTranslateFanout = 4

// PhotoProcessorInterface defines the interface for photo processing
type PhotoProcessorInterface interface {
	Process(ctx context.Context, req *PhotoRequest) (*PhotoResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, result *PhotoResult, metadata map[string]interface{}) error
}

// Arbiter is the mode information the processor consults.
type Arbiter interface {
	State() mode.State
	CanRecognize(lang langid.ID) mode.Capability
}

// Translator translates one recognized text.
type Translator interface {
	Translate(ctx context.Context, text string, pair langid.Pair) (translation.Translation, error)
}

// JobStore persists job rows and results.
type JobStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
	StoreResult(ctx context.Context, result *storage.JobResult) error
}

// StatusPublisher announces job status changes.
type StatusPublisher interface {
	PublishJobStatus(ctx context.Context, jobID, status string, payload interface{}) error
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Arbiter     Arbiter
	Packs       mode.PackChecker
	OnDeviceOCR ocr.Recognizer
	CloudOCR    ocr.Recognizer
	Translator  Translator
	Corrector   *geometry.Corrector
	Layout      *overlay.Engine

	// Optional.
	Store  JobStore
	Events StatusPublisher

	TranslateFanout int
	MaxImageBytes   int64
	HTTPClient      *http.Client
	Logger          *logging.Logger
}

// PhotoProcessor handles photo processing
type PhotoProcessor struct {
	arbiter    Arbiter
	packs      mode.PackChecker
	onDevice   ocr.Recognizer
	cloud      ocr.Recognizer
	translator Translator
	corrector  *geometry.Corrector
	layout     *overlay.Engine
	store      JobStore
	events     StatusPublisher

	fanout        int
	maxImageBytes int64
	httpClient    *http.Client
	logger        *logging.Logger

	busy atomic.Bool
}

// NewPhotoProcessor creates a new photo processor
func NewPhotoProcessor(cfg *ProcessorConfig) (*PhotoProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Arbiter == nil {
		return nil, fmt.Errorf("arbiter is required")
	}
	if cfg.Packs == nil {
		return nil, fmt.Errorf("pack checker is required")
	}
	if cfg.Translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if cfg.OnDeviceOCR == nil && cfg.CloudOCR == nil {
		return nil, fmt.Errorf("at least one OCR recognizer is required")
	}

	p := &PhotoProcessor{
		arbiter:       cfg.Arbiter,
		packs:         cfg.Packs,
		onDevice:      cfg.OnDeviceOCR,
		cloud:         cfg.CloudOCR,
		translator:    cfg.Translator,
		corrector:     cfg.Corrector,
		layout:        cfg.Layout,
		store:         cfg.Store,
		events:        cfg.Events,
		fanout:        cfg.TranslateFanout,
		maxImageBytes: cfg.MaxImageBytes,
		httpClient:    cfg.HTTPClient,
		logger:        cfg.Logger,
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	if p.corrector == nil {
		p.corrector = geometry.NewCorrector(p.logger)
	}
	if p.layout == nil {
		p.layout = overlay.NewEngine()
	}
	if p.fanout <= 0 {
		p.fanout = defaultTranslateFanout
	}
	if p.maxImageBytes <= 0 {
		p.maxImageBytes = defaultMaxImageLen
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return p, nil
}

// Busy reports whether a photo is currently being processed.
func (p *PhotoProcessor) Busy() bool { return p.busy.Load() }

// Process runs req through OCR, translation, geometry correction and layout.
func (p *PhotoProcessor) Process(ctx context.Context, req *PhotoRequest) (*PhotoResult, error) {
	if req == nil {
		return nil, coreerrors.NewInvalidRequestError("request is required")
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	log := p.logger.With("jobId", req.JobID)

	if !p.busy.CompareAndSwap(false, true) {
		log.Warn("Pipeline busy, dropping duplicate trigger")
		return nil, coreerrors.NewPipelineBusyError(req.JobID)
	}
	defer p.busy.Store(false)

	start := time.Now()

	pair, err := langid.NewPair(req.SourceLanguage, req.TargetLanguage)
	if err != nil {
		return nil, coreerrors.NewInvalidRequestError(err.Error())
	}
	log = log.With("pair", pair.String())

	data, err := p.loadImage(ctx, req)
	if err != nil {
		return nil, err
	}

	recognizer, resolved, err := p.recognizerFor(pair.Source)
	if err != nil {
		return nil, err
	}
	log.Info("Recognizing text", "engine", recognizer.Name(), "mode", resolved, "bytes", len(data))

	ocrResult, err := recognizer.Recognize(ctx, ocr.Image{
		Data:      data,
		Languages: []langid.ID{pair.Source},
		JobID:     req.JobID,
	})
	if err != nil {
		return nil, err
	}
	if err := ocrResult.Validate(); err != nil {
		return nil, err
	}

	result := &PhotoResult{
		JobID:         req.JobID,
		Pair:          pair,
		Mode:          resolved,
		OCREngine:     ocrResult.Engine,
		ProcessedSize: ocrResult.ProcessedSize,
		Boxes:         nonEmpty(ocrResult.DetectedBoxes()),
	}

	p.translateAll(ctx, result, log)

	if err := p.place(result, req.DisplaySize, req.Viewport, req.ShowAll); err != nil {
		result.GeometryWarning = err.Error()
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	log.Info("Photo processed",
		"boxes", len(result.Boxes),
		"translated", result.Translated,
		"degraded", result.Degraded,
		"fellBack", result.FellBack,
		"durationMs", result.ProcessingTimeMs)

	return result, nil
}

// Recorrect re-runs geometry correction and layout on a finished result,
// for example once the display size is known or the viewport changed. It
// returns a new result and is idempotent.
func (p *PhotoProcessor) Recorrect(result *PhotoResult, display geometry.Size, vp *overlay.Viewport, showAll bool) (*PhotoResult, error) {
	if result == nil {
		return nil, coreerrors.NewInvalidRequestError("result is required")
	}
	out := *result
	out.Boxes = append([]geometry.DetectedBox(nil), result.Boxes...)
	out.Overlay = nil
	out.GeometryWarning = ""

	err := p.place(&out, display, vp, showAll)
	if err != nil {
		out.GeometryWarning = err.Error()
	}
	return &out, err
}

// recognizerFor picks the OCR engine from the resolved mode. The other
// engine is attached as fallback when it is permitted: cloud only when the
// device is online and not forced offline, Tesseract only when the pack for
// lang is installed.
func (p *PhotoProcessor) recognizerFor(lang langid.ID) (ocr.Recognizer, mode.Mode, error) {
	capability := p.arbiter.CanRecognize(lang)
	if !capability.Capable {
		return nil, capability.Mode, capability.Err()
	}

	st := p.arbiter.State()
	cloudAllowed := p.cloud != nil && st.IsOnline && st.Preference != mode.PreferenceForceOffline
	deviceAllowed := p.onDevice != nil && p.packs.IsInstalled(lang)

	var primary, secondary ocr.Recognizer
	switch capability.Mode {
	case mode.Online:
		if p.cloud != nil {
			primary = p.cloud
			if deviceAllowed {
				secondary = p.onDevice
			}
		} else if deviceAllowed {
			primary = p.onDevice
		}
	default:
		if deviceAllowed {
			primary = p.onDevice
			if cloudAllowed {
				secondary = p.cloud
			}
		} else if cloudAllowed {
			primary = p.cloud
		}
	}

	if primary == nil {
		return nil, capability.Mode, coreerrors.NewOCRFailedError(capability.Engine().Source(),
			coreerrors.OCRUnavailable, fmt.Errorf("no recognizer available for %s", lang))
	}
	if secondary == nil {
		return primary, capability.Mode, nil
	}
	return ocr.NewFallbackRecognizer(primary, secondary, p.logger), capability.Mode, nil
}

// translateAll translates every box with at most p.fanout calls in flight.
// A failed translation leaves the recognized text in place and records the
// error code on the box. It returns once every translation has settled.
func (p *PhotoProcessor) translateAll(ctx context.Context, result *PhotoResult, log *logging.Logger) {
	type outcome struct {
		translated bool
		fellBack   bool
	}
	outcomes := make([]outcome, len(result.Boxes))

	var g errgroup.Group
	g.SetLimit(p.fanout)

	for i := range result.Boxes {
		i := i
		box := &result.Boxes[i]
		g.Go(func() error {
			tr, err := p.translator.Translate(ctx, box.Text, result.Pair)
			if err != nil {
				box.TranslatedText = ""
				box.TranslateError = errorLabel(err)
				log.Warn("Translation degraded to original text",
					"box", i,
					"error", err)
				return nil
			}
			box.TranslatedText = tr.Text
			outcomes[i] = outcome{translated: true, fellBack: tr.FellBack}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch {
		case o.translated && o.fellBack:
			result.Translated++
			result.FellBack++
		case o.translated:
			result.Translated++
		default:
			result.Degraded++
		}
	}
}

// place corrects result's boxes for display and lays them out on vp. With
// an unknown display size the boxes keep their current space: the display
// they were already corrected for, or else the processed size.
func (p *PhotoProcessor) place(result *PhotoResult, display geometry.Size, vp *overlay.Viewport, showAll bool) error {
	if display.IsZero() {
		display = correctedDisplay(result.Boxes)
	}
	boxes, err := p.corrector.Correct(result.Boxes, display)
	result.Boxes = boxes
	result.DisplaySize = display

	if vp != nil {
		space := display
		if space.IsZero() {
			space = result.ProcessedSize
		}
		layout := p.layout.Layout(result.Boxes, space, *vp, showAll)
		result.Overlay = &layout
	}
	return err
}

// correctedDisplay is the display size boxes were corrected for, or the zero
// size when none are corrected.
func correctedDisplay(boxes []geometry.DetectedBox) geometry.Size {
	for _, b := range boxes {
		if d, ok := b.Correction.Display(); ok {
			return d
		}
	}
	return geometry.Size{}
}

// UpdateJobStatus persists the job status and announces it.
func (p *PhotoProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, result *PhotoResult, metadata map[string]interface{}) error {
	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	if result != nil {
		update.SourceLanguage = string(result.Pair.Source)
		update.TargetLanguage = string(result.Pair.Target)
		update.Mode = string(result.Mode)
		update.OCREngine = result.OCREngine
		update.Confidence = result.Confidence()
		update.ProcessingTimeMs = result.ProcessingTimeMs
		update.DegradedBoxes = result.DegradedIndices()
	}

	if metadata != nil {
		if code, ok := metadata["error_code"].(string); ok {
			update.ErrorCode = code
		}
		if msg, ok := metadata["message"].(string); ok {
			update.ErrorMessage = msg
		} else if msg, ok := metadata["error"].(string); ok {
			update.ErrorMessage = msg
		}
	}

	var storeErr error
	if p.store != nil {
		if err := p.store.UpdateJobStatus(ctx, update); err != nil {
			storeErr = fmt.Errorf("failed to persist status %s: %w", status, err)
		} else if result != nil && status == StatusCompleted {
			if err := p.store.StoreResult(ctx, &storage.JobResult{
				JobID:   jobID,
				Boxes:   result.Boxes,
				Overlay: result.Overlay,
			}); err != nil {
				storeErr = fmt.Errorf("failed to persist result: %w", err)
			}
		}
	}

	if p.events != nil {
		var payload interface{}
		if metadata != nil {
			payload = metadata
		}
		if result != nil {
			payload = result
		}
		if err := p.events.PublishJobStatus(ctx, jobID, status, payload); err != nil {
			p.logger.Warn("Failed to publish job status", "jobId", jobID, "status", status, "error", err)
		}
	}

	return storeErr
}

func nonEmpty(boxes []geometry.DetectedBox) []geometry.DetectedBox {
	out := boxes[:0]
	for _, b := range boxes {
		if strings.TrimSpace(b.Text) != "" {
			out = append(out, b)
		}
	}
	return out
}

func errorLabel(err error) string {
	if ce, ok := coreerrors.As(err); ok {
		if ce.Reason != "" {
			return string(ce.Code) + ":" + ce.Reason
		}
		return string(ce.Code)
	}
	return err.Error()
}
