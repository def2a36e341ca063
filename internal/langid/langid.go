// Package langid canonicalizes raw UI language codes into the identifiers
// used by on-device models and the language pack registry.
package langid

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// ID is a canonical language identifier. Raw UI codes (zh-CN, pt_BR, EN-us)
// never compare equal to an ID; run them through Canonicalize first.
type ID string

func (id ID) String() string { return string(id) }

// Traditional is the model code for Chinese written in the Traditional script.
const Traditional ID = "zt"

// tesseractOverrides maps canonical ids to tessdata file names where they
// differ from ISO 639-3.
var tesseractOverrides = map[ID]string{
	"zh":        "chi_sim",
	Traditional: "chi_tra",
	"sr":        "srp",
	"az":        "aze",
	"uz":        "uzb",
}

// Canonicalize normalizes a raw UI code to its canonical ID.
func Canonicalize(raw string) (ID, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "_", "-"))
	if normalized == "" {
		return "", fmt.Errorf("empty language code")
	}
	if ID(normalized) == Traditional {
		return Traditional, nil
	}

	tag, err := language.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("invalid language code %q: %w", raw, err)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", fmt.Errorf("unknown language code %q", raw)
	}
	// zh-TW, zh-HK and zh-MO imply Hant even without an explicit script.
	if base.String() == "zh" {
		if script, _ := tag.Script(); script.String() == "Hant" {
			return Traditional, nil
		}
	}
	return ID(base.String()), nil
}

// MustCanonicalize is Canonicalize for compile-time constants.
func MustCanonicalize(raw string) ID {
	id, err := Canonicalize(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// CanonicalizeAll canonicalizes every code, failing on the first bad one.
func CanonicalizeAll(raws []string) ([]ID, error) {
	ids := make([]ID, 0, len(raws))
	for _, raw := range raws {
		id, err := Canonicalize(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Tesseract returns the tessdata model name for the id.
func (id ID) Tesseract() string {
	if code, ok := tesseractOverrides[id]; ok {
		return code
	}
	base, err := language.ParseBase(string(id))
	if err != nil {
		return string(id)
	}
	return base.ISO3()
}

// Pair is a canonical source/target combination.
type Pair struct {
	Source ID `json:"source"`
	Target ID `json:"target"`
}

// NewPair canonicalizes both raw codes.
func NewPair(rawSource, rawTarget string) (Pair, error) {
	src, err := Canonicalize(rawSource)
	if err != nil {
		return Pair{}, fmt.Errorf("source: %w", err)
	}
	dst, err := Canonicalize(rawTarget)
	if err != nil {
		return Pair{}, fmt.Errorf("target: %w", err)
	}
	return Pair{Source: src, Target: dst}, nil
}

// Identity reports whether source and target are the same language.
func (p Pair) Identity() bool { return p.Source == p.Target }

func (p Pair) String() string { return string(p.Source) + "->" + string(p.Target) }
