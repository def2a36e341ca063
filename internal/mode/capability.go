package mode

import (
	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
)

// Reason explains a capability decision.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonMissingSourcePack Reason = "missing_source_pack"
	ReasonMissingTargetPack Reason = "missing_target_pack"
	ReasonMissingBothPacks  Reason = "missing_both_packs"
	ReasonUnsupportedPair   Reason = "unsupported_pair"
	ReasonIdentity          Reason = "identity"
)

// Engine is the side a caller should invoke.
type Engine string

const (
	EngineNone     Engine = "none"
	EngineOnDevice Engine = "on_device"
	EngineCloud    Engine = "cloud"
)

// Source maps the engine onto the error taxonomy.
func (e Engine) Source() coreerrors.EngineSource {
	if e == EngineOnDevice {
		return coreerrors.EngineOnDevice
	}
	return coreerrors.EngineCloud
}

// Capability is computed fresh per request and never cached.
type Capability struct {
	Capable bool        `json:"capable"`
	Reason  Reason      `json:"reason,omitempty"`
	Mode    Mode        `json:"mode"`
	Pair    langid.Pair `json:"-"`
}

// Engine returns the engine that serves a capable request.
func (c Capability) Engine() Engine {
	if !c.Capable || c.Reason == ReasonIdentity {
		return EngineNone
	}
	if c.Mode == Offline {
		return EngineOnDevice
	}
	return EngineCloud
}

// Err returns a CAPABILITY_DENIED error for a denied capability, nil otherwise.
func (c Capability) Err() error {
	if c.Capable {
		return nil
	}
	return coreerrors.NewCapabilityDeniedError(string(c.Reason), c.Pair.String())
}
