/**
 * Task definitions for the PhotoTranslate queue
 *
 * Photos arrive either from Go producers (asynq client, image as base64)
 * or from Node producers that still serialize Buffers as
 * {"type":"Buffer","data":[...]}. Both decode into PhotoTaskPayload.
 */

package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/adverant/nexus/phototranslate-worker/internal/geometry"
	"github.com/adverant/nexus/phototranslate-worker/internal/overlay"
	"github.com/adverant/nexus/phototranslate-worker/internal/processor"
)

const (
	TypeTranslatePhoto  = "translate-photo"
	TypeInstallLanguage = "install-language"
)

// PhotoTaskPayload is the body of a translate-photo task
type PhotoTaskPayload struct {
	JobID          string            `json:"jobId"`
	Image          []byte            `json:"-"` // set by UnmarshalJSON
	ImageURL       string            `json:"imageUrl,omitempty"`
	SourceLanguage string            `json:"sourceLanguage"`
	TargetLanguage string            `json:"targetLanguage"`
	DisplaySize    geometry.Size     `json:"displaySize"`
	Viewport       *overlay.Viewport `json:"viewport,omitempty"`
	ShowAll        bool              `json:"showAll,omitempty"`
}

// MarshalJSON writes the image as a base64 string.
func (p PhotoTaskPayload) MarshalJSON() ([]byte, error) {
	type Alias PhotoTaskPayload
	aux := struct {
		Image string `json:"image,omitempty"`
		Alias
	}{Alias: Alias(p)}
	if len(p.Image) > 0 {
		aux.Image = base64.StdEncoding.EncodeToString(p.Image)
	}
	return json.Marshal(aux)
}

// UnmarshalJSON accepts the image as a base64 string or a Node.js Buffer object
func (p *PhotoTaskPayload) UnmarshalJSON(data []byte) error {
	type Alias PhotoTaskPayload
	aux := &struct {
		Image interface{} `json:"image,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal PhotoTaskPayload: %w", err)
	}
	if aux.Image == nil {
		return nil
	}

	switch v := aux.Image.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 image: %w", err)
		}
		p.Image = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.Image = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.Image[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("image must be either base64 string or Buffer object, got %T", v)
	}
	return nil
}

// Request converts the payload into a processor request.
func (p *PhotoTaskPayload) Request() *processor.PhotoRequest {
	return &processor.PhotoRequest{
		JobID:          p.JobID,
		Image:          p.Image,
		ImageURL:       p.ImageURL,
		SourceLanguage: p.SourceLanguage,
		TargetLanguage: p.TargetLanguage,
		DisplaySize:    p.DisplaySize,
		Viewport:       p.Viewport,
		ShowAll:        p.ShowAll,
	}
}

// LanguageTaskPayload is the body of an install-language task
type LanguageTaskPayload struct {
	JobID    string `json:"jobId"`
	Language string `json:"language"`
}
