package translation

import (
	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/adverant/nexus/phototranslate-worker/internal/mode"
)

// ArbiterView is what fallback policies and the Service may ask the arbiter.
type ArbiterView interface {
	State() mode.State
	ResolveEngine(source, target langid.ID) (mode.Engine, mode.Capability)
	CanTranslateOffline(source, target langid.ID) mode.Capability
}

// FallbackPolicy picks the engine to try after failed has returned an
// engine error for pair, or mode.EngineNone to stop.
type FallbackPolicy func(failed mode.Engine, pair langid.Pair, a ArbiterView) mode.Engine

// DefaultFallback tries on-device -> cloud when the device is online and the
// user has not forced offline, and cloud -> on-device when the pair is
// capable offline.
func DefaultFallback(failed mode.Engine, pair langid.Pair, a ArbiterView) mode.Engine {
	switch failed {
	case mode.EngineOnDevice:
		st := a.State()
		if st.IsOnline && st.Preference != mode.PreferenceForceOffline {
			return mode.EngineCloud
		}
	case mode.EngineCloud:
		if a.CanTranslateOffline(pair.Source, pair.Target).Capable {
			return mode.EngineOnDevice
		}
	}
	return mode.EngineNone
}

// NoFallback surfaces the first engine error.
func NoFallback(mode.Engine, langid.Pair, ArbiterView) mode.Engine {
	return mode.EngineNone
}
