package ocr

import (
	"context"

	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
)

// FallbackRecognizer tries primary, and secondary when primary fails or
// returns a result without a usable processed size.
type FallbackRecognizer struct {
	primary   Recognizer
	secondary Recognizer
	logger    *logging.Logger
}

// NewFallbackRecognizer composes two recognizers. secondary may be nil.
func NewFallbackRecognizer(primary, secondary Recognizer, logger *logging.Logger) *FallbackRecognizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FallbackRecognizer{primary: primary, secondary: secondary, logger: logger}
}

func (f *FallbackRecognizer) Name() string {
	if f.secondary == nil {
		return f.primary.Name()
	}
	return f.primary.Name() + "+" + f.secondary.Name()
}

func (f *FallbackRecognizer) Source() coreerrors.EngineSource { return f.primary.Source() }

func (f *FallbackRecognizer) Recognize(ctx context.Context, img Image) (*Result, error) {
	res, err := recognizeValid(ctx, f.primary, img)
	if err == nil {
		return res, nil
	}
	if f.secondary == nil {
		return nil, err
	}

	f.logger.Warn("Primary recognizer failed, falling back",
		"primary", f.primary.Name(),
		"secondary", f.secondary.Name(),
		"error", err)

	res, secondErr := recognizeValid(ctx, f.secondary, img)
	if secondErr != nil {
		if ce, ok := coreerrors.As(secondErr); ok {
			if ce.Details == nil {
				ce.Details = map[string]interface{}{}
			}
			ce.Details["primary_error"] = err.Error()
		}
		return nil, secondErr
	}
	return res, nil
}

func recognizeValid(ctx context.Context, r Recognizer, img Image) (*Result, error) {
	res, err := r.Recognize(ctx, img)
	if err != nil {
		if _, ok := coreerrors.As(err); !ok {
			err = coreerrors.NewOCRFailedError(r.Source(), coreerrors.OCRUnavailable, err)
		}
		return nil, err
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}
