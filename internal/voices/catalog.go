// Package voices maps canonical languages to configured text-to-speech voices.
//
// Which voice counts as "male" or "female" is data: every voice in the
// catalog file declares its gender explicitly. Nothing here inspects voice
// identifiers.
package voices

import (
	"bytes"
	"fmt"
	"os"

	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Gender of a voice.
type Gender string

const (
	Female  Gender = "female"
	Male    Gender = "male"
	Neutral Gender = "neutral"
)

// Voice is one configured voice.
type Voice struct {
	ID     string `yaml:"id" json:"id" validate:"required"`
	Gender Gender `yaml:"gender" json:"gender" validate:"required,oneof=female male neutral"`
	// Name is a display label.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// File is the catalog file layout. Keys are raw language codes.
type File struct {
	Voices map[string][]Voice `yaml:"voices" validate:"dive,keys,required,endkeys,min=1,dive"`
}

// Catalog holds voices per canonical language, in file order.
type Catalog struct {
	byLang map[langid.ID][]Voice
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read voice catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog. Unknown fields and duplicate voice ids
// within a language are rejected; two raw codes that canonicalize to the
// same language are merged in file order.
func Parse(data []byte) (*Catalog, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse voice catalog: %w", err)
	}
	if err := validator.New().Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid voice catalog: %w", err)
	}

	// yaml.v3 decodes mappings into Go maps, so iterate the node for order.
	order, err := keyOrder(data)
	if err != nil {
		return nil, err
	}

	c := &Catalog{byLang: make(map[langid.ID][]Voice, len(f.Voices))}
	for _, raw := range order {
		id, err := langid.Canonicalize(raw)
		if err != nil {
			return nil, fmt.Errorf("voice catalog: %w", err)
		}
		seen := make(map[string]bool, len(c.byLang[id]))
		for _, v := range c.byLang[id] {
			seen[v.ID] = true
		}
		for _, v := range f.Voices[raw] {
			if seen[v.ID] {
				return nil, fmt.Errorf("voice catalog: duplicate voice %q for %s", v.ID, id)
			}
			seen[v.ID] = true
			c.byLang[id] = append(c.byLang[id], v)
		}
	}
	return c, nil
}

func keyOrder(data []byte) ([]string, error) {
	var doc struct {
		Voices yaml.Node `yaml:"voices"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse voice catalog: %w", err)
	}
	keys := make([]string, 0, len(doc.Voices.Content)/2)
	for i := 0; i+1 < len(doc.Voices.Content); i += 2 {
		keys = append(keys, doc.Voices.Content[i].Value)
	}
	return keys, nil
}

// Voices returns the configured voices for lang.
func (c *Catalog) Voices(lang langid.ID) []Voice {
	return append([]Voice(nil), c.byLang[lang]...)
}

// Select picks the first voice for lang with the wanted gender. Without
// one, it returns the first voice configured for lang and exact=false. ok
// is false when lang has no voices at all.
func (c *Catalog) Select(lang langid.ID, gender Gender) (v Voice, exact bool, ok bool) {
	list := c.byLang[lang]
	if len(list) == 0 {
		return Voice{}, false, false
	}
	for _, candidate := range list {
		if candidate.Gender == gender {
			return candidate, true, true
		}
	}
	return list[0], false, true
}
