package processor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/geometry"
	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/adverant/nexus/phototranslate-worker/internal/mode"
	"github.com/adverant/nexus/phototranslate-worker/internal/ocr"
	"github.com/adverant/nexus/phototranslate-worker/internal/overlay"
	"github.com/adverant/nexus/phototranslate-worker/internal/storage"
	"github.com/adverant/nexus/phototranslate-worker/internal/translation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type packSet map[langid.ID]bool

func (p packSet) IsInstalled(id langid.ID) bool { return p[id] }

type stubRecognizer struct {
	name   string
	source coreerrors.EngineSource
	texts  []ocr.Text
	size   geometry.Size
	err    error
	calls  atomic.Int32
}

func (s *stubRecognizer) Name() string                    { return s.name }
func (s *stubRecognizer) Source() coreerrors.EngineSource { return s.source }
func (s *stubRecognizer) Recognize(context.Context, ocr.Image) (*ocr.Result, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &ocr.Result{Texts: s.texts, ProcessedSize: s.size, Engine: s.name, Source: s.source}, nil
}

func recognizers(texts ...string) (*stubRecognizer, *stubRecognizer) {
	var ts []ocr.Text
	for i, t := range texts {
		y := float64(20 + 60*i)
		ts = append(ts, ocr.Text{Text: t, Confidence: 0.9, Box: geometry.Box{X0: 10, Y0: y, X1: 110, Y1: y + 50}})
	}
	size := geometry.Size{W: 1000, H: 500}
	return &stubRecognizer{name: "tesseract", source: coreerrors.EngineOnDevice, texts: ts, size: size},
		&stubRecognizer{name: "cloud-vision", source: coreerrors.EngineCloud, texts: ts, size: size}
}

type translatorFunc func(ctx context.Context, text string, pair langid.Pair) (translation.Translation, error)

func (f translatorFunc) Translate(ctx context.Context, text string, pair langid.Pair) (translation.Translation, error) {
	return f(ctx, text, pair)
}

func upper(_ context.Context, text string, _ langid.Pair) (translation.Translation, error) {
	return translation.Translation{Text: "<" + text + ">", Engine: mode.EngineCloud}, nil
}

func newProcessor(t *testing.T, arb *mode.Arbiter, packs packSet, device, cloud ocr.Recognizer, tr Translator) *PhotoProcessor {
	t.Helper()
	p, err := NewPhotoProcessor(&ProcessorConfig{
		Arbiter:         arb,
		Packs:           packs,
		OnDeviceOCR:     device,
		CloudOCR:        cloud,
		Translator:      tr,
		TranslateFanout: 2,
	})
	require.NoError(t, err)
	return p
}

func TestPhotoProcessor_Process(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pref       mode.Preference
		online     bool
		packs      packSet
		cloudErr   error
		wantEngine string
		wantMode   mode.Mode
		wantCode   coreerrors.ErrorCode
		wantDevice int32
		wantCloud  int32
	}{
		{
			name:       "online uses cloud",
			pref:       mode.PreferenceAuto,
			online:     true,
			wantEngine: "cloud-vision",
			wantMode:   mode.Online,
			wantCloud:  1,
		},
		{
			name:       "offline uses tesseract",
			pref:       mode.PreferenceAuto,
			packs:      packSet{"en": true},
			wantEngine: "tesseract",
			wantMode:   mode.Offline,
			wantDevice: 1,
		},
		{
			name:     "offline without source pack is denied",
			pref:     mode.PreferenceAuto,
			packs:    packSet{"ja": true},
			wantCode: coreerrors.ErrorCapabilityDenied,
		},
		{
			name:       "cloud failure falls back to tesseract",
			pref:       mode.PreferenceAuto,
			online:     true,
			packs:      packSet{"en": true},
			cloudErr:   coreerrors.NewOCRFailedError(coreerrors.EngineCloud, coreerrors.OCRNetwork, errors.New("timeout")),
			wantEngine: "tesseract",
			wantMode:   mode.Online,
			wantDevice: 1,
			wantCloud:  1,
		},
		{
			name:      "cloud failure without pack surfaces the OCR error",
			pref:      mode.PreferenceAuto,
			online:    true,
			cloudErr:  coreerrors.NewOCRFailedError(coreerrors.EngineCloud, coreerrors.OCRNetwork, errors.New("timeout")),
			wantCode:  coreerrors.ErrorOCRFailed,
			wantCloud: 1,
		},
		{
			name:       "forced offline never touches cloud",
			pref:       mode.PreferenceForceOffline,
			online:     true,
			packs:      packSet{"en": true},
			wantEngine: "tesseract",
			wantMode:   mode.Offline,
			wantDevice: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			packs := tt.packs
			if packs == nil {
				packs = packSet{}
			}
			device, cloud := recognizers("Exit", "Platform 3")
			cloud.err = tt.cloudErr
			arb := mode.NewArbiter(packs, nil, tt.pref, tt.online, nil)
			p := newProcessor(t, arb, packs, device, cloud, translatorFunc(upper))

			res, err := p.Process(context.Background(), &PhotoRequest{
				JobID:          "job-1",
				Image:          []byte("img"),
				SourceLanguage: "en-US",
				TargetLanguage: "ja",
			})

			assert.Equal(t, tt.wantDevice, device.calls.Load())
			assert.Equal(t, tt.wantCloud, cloud.calls.Load())
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, coreerrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEngine, res.OCREngine)
			assert.Equal(t, tt.wantMode, res.Mode)
			assert.Equal(t, langid.Pair{Source: "en", Target: "ja"}, res.Pair)
			require.Len(t, res.Boxes, 2)
			assert.Equal(t, "<Exit>", res.Boxes[0].TranslatedText)
			assert.Equal(t, 2, res.Translated)
			assert.False(t, p.Busy())
		})
	}
}

func TestPhotoProcessor_CorrectsAndLaysOut(t *testing.T) {
	t.Parallel()

	device, cloud := recognizers("Exit")
	arb := mode.NewArbiter(packSet{}, nil, mode.PreferenceAuto, true, nil)
	p := newProcessor(t, arb, packSet{}, device, cloud, translatorFunc(upper))

	res, err := p.Process(context.Background(), &PhotoRequest{
		Image:          []byte("img"),
		SourceLanguage: "en",
		TargetLanguage: "de",
		DisplaySize:    geometry.Size{W: 2000, H: 1000},
		Viewport:       &overlay.Viewport{W: 1000, H: 500},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.JobID)
	assert.Equal(t, geometry.Box{X0: 20, Y0: 40, X1: 220, Y1: 140}, res.Boxes[0].Box)
	assert.True(t, res.Boxes[0].Correction.IsCorrectedFor(geometry.Size{W: 2000, H: 1000}))
	require.NotNil(t, res.Overlay)
	require.Len(t, res.Overlay.Primary, 1)
	assert.InDelta(t, 0.5, res.Overlay.Scale, 1e-9)
	assert.InDelta(t, 10, res.Overlay.Primary[0].Left, 1e-9)
	assert.Equal(t, "<Exit>", res.Overlay.Primary[0].Text)
}

func TestPhotoProcessor_DegradesFailedTranslations(t *testing.T) {
	t.Parallel()

	device, cloud := recognizers("Exit", "bad", "Open")
	arb := mode.NewArbiter(packSet{}, nil, mode.PreferenceAuto, true, nil)
	tr := translatorFunc(func(ctx context.Context, text string, pair langid.Pair) (translation.Translation, error) {
		if text == "bad" {
			return translation.Translation{}, coreerrors.NewEngineError(coreerrors.EngineCloud, "translate", errors.New("503"))
		}
		return upper(ctx, text, pair)
	})
	p := newProcessor(t, arb, packSet{}, device, cloud, tr)

	res, err := p.Process(context.Background(), &PhotoRequest{Image: []byte("img"), SourceLanguage: "en", TargetLanguage: "fr"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Translated)
	assert.Equal(t, 1, res.Degraded)
	assert.Equal(t, "ENGINE_FAILED", res.Boxes[1].TranslateError)
	assert.Equal(t, "bad", res.Boxes[1].DisplayText())
	assert.Equal(t, []int64{1}, res.DegradedIndices())
}

func TestPhotoProcessor_DropsTriggerWhileBusy(t *testing.T) {
	t.Parallel()

	device, cloud := recognizers("Exit")
	arb := mode.NewArbiter(packSet{}, nil, mode.PreferenceAuto, true, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	tr := translatorFunc(func(ctx context.Context, text string, pair langid.Pair) (translation.Translation, error) {
		once.Do(func() { close(entered) })
		<-release
		return upper(ctx, text, pair)
	})
	p := newProcessor(t, arb, packSet{}, device, cloud, tr)
	req := func() *PhotoRequest {
		return &PhotoRequest{Image: []byte("img"), SourceLanguage: "en", TargetLanguage: "ja"}
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Process(context.Background(), req())
		done <- err
	}()
	<-entered

	_, err := p.Process(context.Background(), req())
	require.Error(t, err)
	assert.Equal(t, coreerrors.ErrorPipelineBusy, coreerrors.CodeOf(err))
	assert.True(t, p.Busy())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, p.Busy())

	_, err = p.Process(context.Background(), req())
	assert.NoError(t, err)
}

func TestPhotoProcessor_BoundedFanout(t *testing.T) {
	t.Parallel()

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = string(rune('a' + i))
	}
	device, cloud := recognizers(texts...)
	arb := mode.NewArbiter(packSet{}, nil, mode.PreferenceAuto, true, nil)

	var inFlight, peak atomic.Int32
	tr := translatorFunc(func(ctx context.Context, text string, pair langid.Pair) (translation.Translation, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return upper(ctx, text, pair)
	})
	p := newProcessor(t, arb, packSet{}, device, cloud, tr)

	res, err := p.Process(context.Background(), &PhotoRequest{Image: []byte("img"), SourceLanguage: "en", TargetLanguage: "ja"})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Translated)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPhotoProcessor_Recorrect(t *testing.T) {
	t.Parallel()

	device, cloud := recognizers("Exit")
	arb := mode.NewArbiter(packSet{}, nil, mode.PreferenceAuto, true, nil)
	p := newProcessor(t, arb, packSet{}, device, cloud, translatorFunc(upper))

	res, err := p.Process(context.Background(), &PhotoRequest{Image: []byte("img"), SourceLanguage: "en", TargetLanguage: "ja"})
	require.NoError(t, err)
	assert.False(t, res.Boxes[0].Correction.IsCorrected())
	assert.Equal(t, geometry.Box{X0: 10, Y0: 20, X1: 110, Y1: 70}, res.Boxes[0].Box)

	display := geometry.Size{W: 2000, H: 1000}
	once, err := p.Recorrect(res, display, &overlay.Viewport{W: 500, H: 250}, false)
	require.NoError(t, err)
	twice, err := p.Recorrect(once, display, &overlay.Viewport{W: 500, H: 250}, false)
	require.NoError(t, err)

	assert.Equal(t, geometry.Box{X0: 20, Y0: 40, X1: 220, Y1: 140}, once.Boxes[0].Box)
	assert.Equal(t, once.Boxes, twice.Boxes)
	assert.Equal(t, once.Overlay, twice.Overlay)
	assert.Equal(t, geometry.Box{X0: 10, Y0: 20, X1: 110, Y1: 70}, res.Boxes[0].Box, "input result is not mutated")

	// an unknown display keeps the space the boxes were corrected for
	kept, err := p.Recorrect(once, geometry.Size{}, &overlay.Viewport{W: 500, H: 250}, false)
	require.NoError(t, err)
	assert.Equal(t, display, kept.DisplaySize)
	assert.Equal(t, once.Boxes, kept.Boxes)
	assert.Equal(t, once.Overlay, kept.Overlay)

	_, err = p.Recorrect(res, geometry.Size{W: -1, H: 10}, nil, false)
	assert.Equal(t, coreerrors.ErrorGeometryUncorrectable, coreerrors.CodeOf(err))
}

func TestPhotoProcessor_InvalidRequests(t *testing.T) {
	t.Parallel()

	device, cloud := recognizers("Exit")
	arb := mode.NewArbiter(packSet{}, nil, mode.PreferenceAuto, true, nil)
	p := newProcessor(t, arb, packSet{}, device, cloud, translatorFunc(upper))

	_, err := p.Process(context.Background(), &PhotoRequest{Image: []byte("img"), SourceLanguage: "", TargetLanguage: "ja"})
	assert.Equal(t, coreerrors.ErrorInvalidRequest, coreerrors.CodeOf(err))

	_, err = p.Process(context.Background(), &PhotoRequest{SourceLanguage: "en", TargetLanguage: "ja"})
	assert.Equal(t, coreerrors.ErrorInvalidRequest, coreerrors.CodeOf(err))

	_, err = NewPhotoProcessor(&ProcessorConfig{Arbiter: arb, Packs: packSet{}, Translator: translatorFunc(upper)})
	assert.Error(t, err)
}

func TestPhotoProcessor_DownloadsImage(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	device, cloud := recognizers("Exit")
	arb := mode.NewArbiter(packSet{}, nil, mode.PreferenceAuto, true, nil)
	p := newProcessor(t, arb, packSet{}, device, cloud, translatorFunc(upper))

	data, err := p.loadImage(context.Background(), &PhotoRequest{ImageURL: srv.URL + "/photo.png"})
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	_, err = p.loadImage(context.Background(), &PhotoRequest{ImageURL: srv.URL + "/missing.png"})
	assert.Error(t, err)
	assert.Equal(t, int32(2), hits.Load(), "4xx is not retried")
}

type fakeStore struct {
	mu      sync.Mutex
	updates []*storage.JobUpdate
	results []*storage.JobResult
}

func (f *fakeStore) UpdateJobStatus(_ context.Context, u *storage.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeStore) StoreResult(_ context.Context, r *storage.JobResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	return nil
}

type fakeEvents struct {
	statuses []string
	err      error
}

func (f *fakeEvents) PublishJobStatus(_ context.Context, _ string, status string, _ interface{}) error {
	f.statuses = append(f.statuses, status)
	return f.err
}

func TestPhotoProcessor_UpdateJobStatus(t *testing.T) {
	t.Parallel()

	device, cloud := recognizers("Exit", "bad")
	arb := mode.NewArbiter(packSet{}, nil, mode.PreferenceAuto, true, nil)
	store := &fakeStore{}
	events := &fakeEvents{err: errors.New("redis down")}
	p, err := NewPhotoProcessor(&ProcessorConfig{
		Arbiter:     arb,
		Packs:       packSet{},
		OnDeviceOCR: device,
		CloudOCR:    cloud,
		Translator: translatorFunc(func(ctx context.Context, text string, pair langid.Pair) (translation.Translation, error) {
			if text == "bad" {
				return translation.Translation{}, errors.New("boom")
			}
			return upper(ctx, text, pair)
		}),
		Store:  store,
		Events: events,
	})
	require.NoError(t, err)

	ctx := context.Background()
	res, err := p.Process(ctx, &PhotoRequest{JobID: "job-9", Image: []byte("img"), SourceLanguage: "en", TargetLanguage: "ja"})
	require.NoError(t, err)

	require.NoError(t, p.UpdateJobStatus(ctx, "job-9", StatusProcessing, nil, nil))
	require.NoError(t, p.UpdateJobStatus(ctx, "job-9", StatusCompleted, res, nil))
	timeout := coreerrors.NewProcessingTimeoutError("job-9", time.Second, nil)
	require.NoError(t, p.UpdateJobStatus(ctx, "job-9", StatusFailed, nil, timeout.ToMap()))

	require.Len(t, store.updates, 3)
	done := store.updates[1]
	assert.Equal(t, "en", done.SourceLanguage)
	assert.Equal(t, "ja", done.TargetLanguage)
	assert.Equal(t, "online", done.Mode)
	assert.Equal(t, "cloud-vision", done.OCREngine)
	assert.InDelta(t, 0.9, done.Confidence, 1e-9)
	assert.Equal(t, []int64{1}, done.DegradedBoxes)

	require.Len(t, store.results, 1)
	assert.Equal(t, "job-9", store.results[0].JobID)

	failed := store.updates[2]
	assert.Equal(t, "PROCESSING_TIMEOUT", failed.ErrorCode)
	assert.NotEmpty(t, failed.ErrorMessage)

	assert.Equal(t, []string{StatusProcessing, StatusCompleted, StatusFailed}, events.statuses)
}
