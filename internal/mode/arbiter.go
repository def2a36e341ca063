/**
 * Translation mode arbiter
 *
 * Combines the user's preference, the connectivity signal and the installed
 * language packs into a per-request decision: which engine serves a pair,
 * and whether the request is possible at all. The arbiter only reasons about
 * state; it never calls an engine or the network.
 */

package mode

import (
	"fmt"
	"strings"
	"sync"

	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
)

// Preference is the user's mode choice.
type Preference string

const (
	PreferenceAuto         Preference = "auto"
	PreferenceForceOnline  Preference = "force_online"
	PreferenceForceOffline Preference = "force_offline"
)

// ParsePreference accepts the config spellings of a preference.
func ParsePreference(s string) (Preference, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "", "auto":
		return PreferenceAuto, nil
	case "force_online", "online":
		return PreferenceForceOnline, nil
	case "force_offline", "offline":
		return PreferenceForceOffline, nil
	}
	return "", fmt.Errorf("unknown mode preference %q", s)
}

// Mode is the resolved engine side.
type Mode string

const (
	Online  Mode = "online"
	Offline Mode = "offline"
)

// Resolve derives the mode from preference and connectivity.
func Resolve(pref Preference, isOnline bool) Mode {
	switch pref {
	case PreferenceForceOffline:
		return Offline
	case PreferenceForceOnline:
		return Online
	}
	if isOnline {
		return Online
	}
	return Offline
}

// State is a consistent snapshot of the arbiter.
type State struct {
	Preference Preference `json:"preference"`
	IsOnline   bool       `json:"is_online"`
	Resolved   Mode       `json:"resolved"`
}

// Observer is notified synchronously with the new state.
type Observer func(State)

// PackChecker answers whether a language pack is installed.
type PackChecker interface {
	IsInstalled(id langid.ID) bool
}

// PairSupport reports which directions the on-device engine translates.
type PairSupport interface {
	SupportsPair(source, target langid.ID) bool
}

// Arbiter owns ModeState.
type Arbiter struct {
	packs  PackChecker
	pairs  PairSupport
	logger *logging.Logger

	mu         sync.Mutex
	preference Preference
	isOnline   bool

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// NewArbiter creates an arbiter. pairs may be nil when every installed pair
// is supported.
func NewArbiter(packs PackChecker, pairs PairSupport, pref Preference, isOnline bool, logger *logging.Logger) *Arbiter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Arbiter{
		packs:      packs,
		pairs:      pairs,
		logger:     logger,
		preference: pref,
		isOnline:   isOnline,
		observers:  make(map[int]Observer),
	}
}

// State returns the current snapshot. Resolved is derived on read.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *Arbiter) stateLocked() State {
	return State{
		Preference: a.preference,
		IsOnline:   a.isOnline,
		Resolved:   Resolve(a.preference, a.isOnline),
	}
}

// SetUserPreference updates the preference and always notifies observers.
func (a *Arbiter) SetUserPreference(pref Preference) {
	a.mu.Lock()
	a.preference = pref
	st := a.stateLocked()
	a.mu.Unlock()

	a.logger.Info("Mode preference changed", "preference", pref, "resolved", st.Resolved)
	a.notify(st)
}

// OnConnectivityChanged records connectivity and notifies observers only
// when the resolved mode flips.
func (a *Arbiter) OnConnectivityChanged(isOnline bool) {
	a.mu.Lock()
	before := Resolve(a.preference, a.isOnline)
	a.isOnline = isOnline
	st := a.stateLocked()
	a.mu.Unlock()

	if st.Resolved == before {
		a.logger.Debug("Connectivity changed without mode change", "online", isOnline, "resolved", st.Resolved)
		return
	}

	a.logger.Info("Resolved mode changed", "online", isOnline, "from", before, "to", st.Resolved)
	a.notify(st)
}

// OnPacksChanged tells observers that capabilities may differ although the
// mode did not change.
func (a *Arbiter) OnPacksChanged() {
	a.notify(a.State())
}

// Subscribe registers an observer. The returned func removes it.
func (a *Arbiter) Subscribe(o Observer) func() {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()

	key := a.nextObs
	a.nextObs++
	a.observers[key] = o

	return func() {
		a.obsMu.Lock()
		defer a.obsMu.Unlock()
		delete(a.observers, key)
	}
}

func (a *Arbiter) notify(st State) {
	a.obsMu.Lock()
	obs := make([]Observer, 0, len(a.observers))
	for _, o := range a.observers {
		obs = append(obs, o)
	}
	a.obsMu.Unlock()

	for _, o := range obs {
		o(st)
	}
}

// CanTranslate decides whether source->target can be served right now.
func (a *Arbiter) CanTranslate(source, target langid.ID) Capability {
	resolved := a.State().Resolved
	pair := langid.Pair{Source: source, Target: target}

	if pair.Identity() {
		return Capability{Capable: true, Reason: ReasonIdentity, Mode: resolved, Pair: pair}
	}
	if resolved == Online {
		return Capability{Capable: true, Mode: Online, Pair: pair}
	}
	return a.offlineCapability(pair)
}

// CanTranslateOffline evaluates the on-device side regardless of the
// resolved mode. Fallback policies use it to decide whether the on-device
// engine can stand in for a failed cloud call.
func (a *Arbiter) CanTranslateOffline(source, target langid.ID) Capability {
	pair := langid.Pair{Source: source, Target: target}
	if pair.Identity() {
		return Capability{Capable: true, Reason: ReasonIdentity, Mode: Offline, Pair: pair}
	}
	return a.offlineCapability(pair)
}

func (a *Arbiter) offlineCapability(pair langid.Pair) Capability {
	source, target := pair.Source, pair.Target
	hasSource := a.packs.IsInstalled(source)
	hasTarget := a.packs.IsInstalled(target)
	switch {
	case !hasSource && !hasTarget:
		return Capability{Reason: ReasonMissingBothPacks, Mode: Offline, Pair: pair}
	case !hasSource:
		return Capability{Reason: ReasonMissingSourcePack, Mode: Offline, Pair: pair}
	case !hasTarget:
		return Capability{Reason: ReasonMissingTargetPack, Mode: Offline, Pair: pair}
	}

	if a.pairs != nil && !a.pairs.SupportsPair(source, target) {
		return Capability{Reason: ReasonUnsupportedPair, Mode: Offline, Pair: pair}
	}
	return Capability{Capable: true, Mode: Offline, Pair: pair}
}

// ResolveEngine maps CanTranslate onto the engine a caller should invoke.
// Identity pairs and denied pairs resolve to EngineNone.
func (a *Arbiter) ResolveEngine(source, target langid.ID) (Engine, Capability) {
	c := a.CanTranslate(source, target)
	return c.Engine(), c
}

// CanRecognize decides whether OCR for lang can run right now. Offline
// recognition needs the language pack for its script data.
func (a *Arbiter) CanRecognize(lang langid.ID) Capability {
	resolved := a.State().Resolved
	pair := langid.Pair{Source: lang}

	if resolved == Online {
		return Capability{Capable: true, Mode: Online, Pair: pair}
	}
	if !a.packs.IsInstalled(lang) {
		return Capability{Reason: ReasonMissingSourcePack, Mode: Offline, Pair: pair}
	}
	return Capability{Capable: true, Mode: Offline, Pair: pair}
}
