package mode

import (
	"sync"
	"testing"

	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePacks struct {
	mu  sync.Mutex
	set map[langid.ID]bool
}

func newFakePacks(ids ...langid.ID) *fakePacks {
	p := &fakePacks{set: make(map[langid.ID]bool)}
	for _, id := range ids {
		p.set[id] = true
	}
	return p
}

func (p *fakePacks) IsInstalled(id langid.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set[id]
}

func (p *fakePacks) remove(id langid.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.set, id)
}

type pivotPairs struct{ pivot langid.ID }

func (p pivotPairs) SupportsPair(source, target langid.ID) bool {
	return source == p.pivot || target == p.pivot
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pref   Preference
		online bool
		want   Mode
	}{
		{PreferenceAuto, true, Online},
		{PreferenceAuto, false, Offline},
		{PreferenceForceOnline, true, Online},
		{PreferenceForceOnline, false, Online},
		{PreferenceForceOffline, true, Offline},
		{PreferenceForceOffline, false, Offline},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve(tt.pref, tt.online), "%s online=%v", tt.pref, tt.online)
	}
}

func TestArbiter_ResolvedIsPureFunctionOfInputs(t *testing.T) {
	t.Parallel()

	a := NewArbiter(newFakePacks(), nil, PreferenceAuto, true, nil)
	steps := []func(){
		func() { a.OnConnectivityChanged(false) },
		func() { a.SetUserPreference(PreferenceForceOnline) },
		func() { a.OnConnectivityChanged(true) },
		func() { a.SetUserPreference(PreferenceForceOffline) },
		func() { a.OnConnectivityChanged(false) },
		func() { a.SetUserPreference(PreferenceAuto) },
	}
	for _, step := range steps {
		step()
		st := a.State()
		assert.Equal(t, Resolve(st.Preference, st.IsOnline), st.Resolved)
	}
}

func TestArbiter_Notifications(t *testing.T) {
	t.Parallel()

	a := NewArbiter(newFakePacks(), nil, PreferenceAuto, true, nil)

	var got []State
	unsubscribe := a.Subscribe(func(s State) { got = append(got, s) })

	a.OnConnectivityChanged(true) // no change
	require.Empty(t, got)

	a.OnConnectivityChanged(false)
	require.Len(t, got, 1)
	assert.Equal(t, Offline, got[0].Resolved)

	a.SetUserPreference(PreferenceForceOffline) // same resolved, still notifies
	require.Len(t, got, 2)
	assert.Equal(t, PreferenceForceOffline, got[1].Preference)

	a.OnConnectivityChanged(true) // forced offline, no flip
	require.Len(t, got, 2)

	a.OnPacksChanged()
	require.Len(t, got, 3)

	unsubscribe()
	a.SetUserPreference(PreferenceAuto)
	assert.Len(t, got, 3)
}

func TestArbiter_ObserverSeesFreshState(t *testing.T) {
	t.Parallel()

	a := NewArbiter(newFakePacks(), nil, PreferenceAuto, true, nil)
	var seen State
	a.Subscribe(func(s State) { seen = a.State() })

	a.OnConnectivityChanged(false)
	assert.Equal(t, Offline, seen.Resolved)
}

func TestArbiter_CanTranslate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		pref      Preference
		online    bool
		installed []langid.ID
		pairs     PairSupport
		source    langid.ID
		target    langid.ID
		want      Capability
		engine    Engine
	}{
		{
			name: "online is always capable", pref: PreferenceAuto, online: true,
			source: "en", target: "ja",
			want:   Capability{Capable: true, Mode: Online},
			engine: EngineCloud,
		},
		{
			name: "offline with both packs", pref: PreferenceAuto, online: false,
			installed: []langid.ID{"en", "ja"}, source: "en", target: "ja",
			want:   Capability{Capable: true, Mode: Offline},
			engine: EngineOnDevice,
		},
		{
			name: "forced offline while online", pref: PreferenceForceOffline, online: true,
			installed: []langid.ID{"en", "ja"}, source: "en", target: "ja",
			want:   Capability{Capable: true, Mode: Offline},
			engine: EngineOnDevice,
		},
		{
			name: "missing source", pref: PreferenceAuto, online: false,
			installed: []langid.ID{"ja"}, source: "en", target: "ja",
			want:   Capability{Reason: ReasonMissingSourcePack, Mode: Offline},
			engine: EngineNone,
		},
		{
			name: "missing target", pref: PreferenceAuto, online: false,
			installed: []langid.ID{"en"}, source: "en", target: "ja",
			want:   Capability{Reason: ReasonMissingTargetPack, Mode: Offline},
			engine: EngineNone,
		},
		{
			name: "missing both", pref: PreferenceForceOffline, online: true,
			source: "en", target: "ja",
			want:   Capability{Reason: ReasonMissingBothPacks, Mode: Offline},
			engine: EngineNone,
		},
		{
			name: "unsupported direction", pref: PreferenceAuto, online: false,
			installed: []langid.ID{"de", "ja"}, pairs: pivotPairs{pivot: "en"},
			source: "de", target: "ja",
			want:   Capability{Reason: ReasonUnsupportedPair, Mode: Offline},
			engine: EngineNone,
		},
		{
			name: "identity pair", pref: PreferenceAuto, online: false,
			source: "en", target: "en",
			want:   Capability{Capable: true, Reason: ReasonIdentity, Mode: Offline},
			engine: EngineNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := NewArbiter(newFakePacks(tt.installed...), tt.pairs, tt.pref, tt.online, nil)
			got := a.CanTranslate(tt.source, tt.target)

			assert.Equal(t, tt.want.Capable, got.Capable)
			assert.Equal(t, tt.want.Reason, got.Reason)
			assert.Equal(t, tt.want.Mode, got.Mode)

			engine, c := a.ResolveEngine(tt.source, tt.target)
			assert.Equal(t, tt.engine, engine)
			assert.Equal(t, got, c)
		})
	}
}

func TestArbiter_RemovingPackFlipsCapability(t *testing.T) {
	t.Parallel()

	packs := newFakePacks("en", "ja")
	a := NewArbiter(packs, nil, PreferenceForceOffline, false, nil)
	require.True(t, a.CanTranslate("en", "ja").Capable)

	packs.remove("ja")
	c := a.CanTranslate("en", "ja")
	assert.False(t, c.Capable)
	assert.Equal(t, ReasonMissingTargetPack, c.Reason)

	err := c.Err()
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.ErrorCapabilityDenied))
	ce, ok := coreerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, string(ReasonMissingTargetPack), ce.Reason)
}

func TestArbiter_CanRecognize(t *testing.T) {
	t.Parallel()

	a := NewArbiter(newFakePacks("en"), nil, PreferenceAuto, false, nil)
	assert.True(t, a.CanRecognize("en").Capable)
	c := a.CanRecognize("ja")
	assert.False(t, c.Capable)
	assert.Equal(t, ReasonMissingSourcePack, c.Reason)

	a.OnConnectivityChanged(true)
	assert.True(t, a.CanRecognize("ja").Capable)
	assert.Equal(t, EngineCloud, a.CanRecognize("ja").Engine())
}

func TestParsePreference(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Preference{
		"":              PreferenceAuto,
		"AUTO":          PreferenceAuto,
		"force-online":  PreferenceForceOnline,
		"offline":       PreferenceForceOffline,
		"force_offline": PreferenceForceOffline,
	} {
		got, err := ParsePreference(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePreference("sometimes")
	assert.Error(t, err)
}

func TestArbiter_CanTranslateOfflineIgnoresResolvedMode(t *testing.T) {
	t.Parallel()

	a := NewArbiter(newFakePacks("en"), nil, PreferenceAuto, true, nil)
	require.Equal(t, Online, a.State().Resolved)

	c := a.CanTranslateOffline("en", "ja")
	assert.False(t, c.Capable)
	assert.Equal(t, ReasonMissingTargetPack, c.Reason)
	assert.Equal(t, Offline, c.Mode)
}
