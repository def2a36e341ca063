package translation

import (
	"context"
	"fmt"
	"strings"

	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
	"github.com/adverant/nexus/phototranslate-worker/internal/mode"
)

// Translation is the outcome of one Service call.
type Translation struct {
	Text     string      `json:"text"`
	Engine   mode.Engine `json:"engine"`
	Cached   bool        `json:"cached,omitempty"`
	FellBack bool        `json:"fell_back,omitempty"`
}

// Service asks the arbiter which engine to use, runs it, and applies the
// fallback policy on engine failure.
type Service struct {
	arbiter  ArbiterView
	engines  map[mode.Engine]Engine
	cache    *Cache
	fallback FallbackPolicy
	logger   *logging.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache injects the translation cache.
func WithCache(c *Cache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithFallback replaces DefaultFallback.
func WithFallback(p FallbackPolicy) ServiceOption {
	return func(s *Service) { s.fallback = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a translation service. Either engine may be nil when
// that side is not deployed.
func NewService(arbiter ArbiterView, onDevice, cloud Engine, opts ...ServiceOption) *Service {
	s := &Service{
		arbiter:  arbiter,
		engines:  make(map[mode.Engine]Engine, 2),
		fallback: DefaultFallback,
		logger:   logging.NewNop(),
	}
	if onDevice != nil {
		s.engines[mode.EngineOnDevice] = onDevice
	}
	if cloud != nil {
		s.engines[mode.EngineCloud] = cloud
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Translate translates text for pair. It returns CAPABILITY_DENIED when the
// arbiter refuses the pair and ENGINE_FAILED when every permitted engine
// failed.
func (s *Service) Translate(ctx context.Context, text string, pair langid.Pair) (Translation, error) {
	if strings.TrimSpace(text) == "" {
		return Translation{Text: text, Engine: mode.EngineNone}, nil
	}

	engine, capability := s.arbiter.ResolveEngine(pair.Source, pair.Target)
	if !capability.Capable {
		return Translation{}, capability.Err()
	}
	if capability.Reason == mode.ReasonIdentity {
		return Translation{Text: text, Engine: mode.EngineNone}, nil
	}

	if s.cache != nil {
		if hit, ok := s.cache.Get(text, pair); ok {
			return Translation{Text: hit, Engine: engine, Cached: true}, nil
		}
	}

	out, err := s.run(ctx, engine, text, pair)
	if err == nil {
		s.remember(text, pair, out)
		return Translation{Text: out, Engine: engine}, nil
	}

	next := s.fallback(engine, pair, s.arbiter)
	if next == mode.EngineNone || next == engine {
		return Translation{}, err
	}

	s.logger.Warn("Translation engine failed, falling back",
		"pair", pair.String(),
		"failed", engine,
		"fallback", next,
		"error", err)

	out, fbErr := s.run(ctx, next, text, pair)
	if fbErr != nil {
		if ce, ok := coreerrors.As(fbErr); ok {
			ce.Details["first_error"] = err.Error()
		}
		return Translation{}, fbErr
	}
	s.remember(text, pair, out)
	return Translation{Text: out, Engine: next, FellBack: true}, nil
}

func (s *Service) run(ctx context.Context, which mode.Engine, text string, pair langid.Pair) (string, error) {
	e, ok := s.engines[which]
	if !ok {
		return "", coreerrors.NewEngineError(which.Source(), "translate",
			fmt.Errorf("%s engine not configured", which))
	}
	out, err := e.Translate(ctx, text, pair)
	if err != nil {
		return "", coreerrors.NewEngineError(e.Source(), "translate", err)
	}
	return out, nil
}

func (s *Service) remember(text string, pair langid.Pair, out string) {
	if s.cache != nil {
		s.cache.Add(text, pair, out)
	}
}
