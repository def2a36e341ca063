/**
 * Error types for the photo translation worker
 *
 * Every failure that crosses a component boundary is a *CoreError carrying an
 * ErrorCode, so callers branch on codes instead of message text.
 */

package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Capability and engine errors
	ErrorCapabilityDenied ErrorCode = "CAPABILITY_DENIED"
	ErrorEngineFailed     ErrorCode = "ENGINE_FAILED"
	ErrorOCRFailed        ErrorCode = "OCR_FAILED"

	// Geometry errors
	ErrorGeometryUncorrectable ErrorCode = "GEOMETRY_UNCORRECTABLE"

	// Language pack errors
	ErrorRegistryPersistence ErrorCode = "REGISTRY_PERSISTENCE_FAILED"
	ErrorPackInstallFailed   ErrorCode = "PACK_INSTALL_FAILED"
	ErrorPackRemoveFailed    ErrorCode = "PACK_REMOVE_FAILED"

	// Pipeline errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorPipelineBusy      ErrorCode = "PIPELINE_BUSY"
	ErrorInvalidRequest    ErrorCode = "INVALID_REQUEST"
)

// EngineSource identifies which side of the arbiter produced an engine error.
type EngineSource string

const (
	EngineOnDevice EngineSource = "on_device"
	EngineCloud    EngineSource = "cloud"
)

// OCRFailure classifies OCR errors.
type OCRFailure string

const (
	OCRNoText      OCRFailure = "no_text"
	OCRUnavailable OCRFailure = "unavailable"
	OCRNetwork     OCRFailure = "network"
	OCRDecode      OCRFailure = "decode"
)

// CoreError represents a structured error
type CoreError struct {
	Code      ErrorCode
	Message   string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error

	// Reason is set for CAPABILITY_DENIED.
	Reason string
	// Engine is set for ENGINE_FAILED and OCR_FAILED.
	Engine EngineSource
	// OCR is set for OCR_FAILED.
	OCR OCRFailure
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewCapabilityDeniedError(reason string, pair string) *CoreError {
	return &CoreError{
		Code:      ErrorCapabilityDenied,
		Message:   fmt.Sprintf("translation %s not possible: %s", pair, reason),
		Timestamp: time.Now(),
		Reason:    reason,
		Details: map[string]interface{}{
			"reason": reason,
			"pair":   pair,
		},
	}
}

func NewEngineError(source EngineSource, op string, cause error) *CoreError {
	return &CoreError{
		Code:      ErrorEngineFailed,
		Message:   fmt.Sprintf("%s engine failed during %s", source, op),
		Timestamp: time.Now(),
		Engine:    source,
		Details: map[string]interface{}{
			"engine":    string(source),
			"operation": op,
		},
		Cause: cause,
	}
}

func NewOCRFailedError(source EngineSource, failure OCRFailure, cause error) *CoreError {
	return &CoreError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed on %s engine: %s", source, failure),
		Timestamp: time.Now(),
		Engine:    source,
		OCR:       failure,
		Details: map[string]interface{}{
			"engine":  string(source),
			"failure": string(failure),
		},
		Cause: cause,
	}
}

func NewGeometryUncorrectableError(ocrW, ocrH, displayW, displayH float64) *CoreError {
	return &CoreError{
		Code:      ErrorGeometryUncorrectable,
		Message:   fmt.Sprintf("cannot map %.0fx%.0f onto %.0fx%.0f", ocrW, ocrH, displayW, displayH),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_size":     fmt.Sprintf("%.0fx%.0f", ocrW, ocrH),
			"display_size": fmt.Sprintf("%.0fx%.0f", displayW, displayH),
		},
	}
}

func NewRegistryPersistenceError(op string, language string, cause error) *CoreError {
	return &CoreError{
		Code:      ErrorRegistryPersistence,
		Message:   fmt.Sprintf("failed to persist language pack %s of %s", op, language),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": op,
			"language":  language,
		},
		Cause: cause,
	}
}

func NewPackInstallError(language string, cause error) *CoreError {
	return &CoreError{
		Code:      ErrorPackInstallFailed,
		Message:   fmt.Sprintf("failed to install language pack %s", language),
		Timestamp: time.Now(),
		Engine:    EngineOnDevice,
		Details:   map[string]interface{}{"language": language},
		Cause:     cause,
	}
}

func NewPackRemoveError(language string, cause error) *CoreError {
	return &CoreError{
		Code:      ErrorPackRemoveFailed,
		Message:   fmt.Sprintf("failed to remove language pack %s", language),
		Timestamp: time.Now(),
		Engine:    EngineOnDevice,
		Details:   map[string]interface{}{"language": language},
		Cause:     cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *CoreError {
	return &CoreError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"job_id":           jobID,
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewPipelineBusyError(photoID string) *CoreError {
	return &CoreError{
		Code:      ErrorPipelineBusy,
		Message:   "another photo is still being processed",
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"photo_id": photoID},
	}
}

func NewInvalidRequestError(msg string) *CoreError {
	return &CoreError{
		Code:      ErrorInvalidRequest,
		Message:   msg,
		Timestamp: time.Now(),
	}
}

// ToMap converts error to map for database storage
func (e *CoreError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

// As finds the first *CoreError in err's chain.
func As(err error) (*CoreError, bool) {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// CodeOf returns the code of the first *CoreError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	if ce, ok := As(err); ok {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// EngineOf returns the engine source recorded on err, or "".
func EngineOf(err error) EngineSource {
	if ce, ok := As(err); ok {
		return ce.Engine
	}
	return ""
}
