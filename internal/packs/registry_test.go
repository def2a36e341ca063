package packs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	mock_packs "github.com/adverant/nexus/phototranslate-worker/internal/packs/mock"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	en langid.ID = "en"
	es langid.ID = "es"
	ja langid.ID = "ja"
)

func newRegistryMock(t *testing.T, ctrl *gomock.Controller, setupEngine func(*mock_packs.MockEngine), store Store) *Registry {
	t.Helper()
	engine := mock_packs.NewMockEngine(ctrl)
	if setupEngine != nil {
		setupEngine(engine)
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return NewRegistry(engine, store, nil)
}

func expectDownload(me *mock_packs.MockEngine, id langid.ID, err error) {
	me.EXPECT().IsLanguageInstalled(gomock.Any(), id).Return(false, nil)
	me.EXPECT().DownloadLanguage(gomock.Any(), id).Return(err)
}

func TestRegistry_Install(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		f             func(*mock_packs.MockEngine)
		wantCode      coreerrors.ErrorCode
		wantInstalled bool
	}{
		{
			name:          "downloads and records",
			f:             func(me *mock_packs.MockEngine) { expectDownload(me, en, nil) },
			wantInstalled: true,
		},
		{
			name: "engine already has model files",
			f: func(me *mock_packs.MockEngine) {
				me.EXPECT().IsLanguageInstalled(gomock.Any(), en).Return(true, nil)
			},
			wantInstalled: true,
		},
		{
			name: "engine check error falls back to download",
			f: func(me *mock_packs.MockEngine) {
				me.EXPECT().IsLanguageInstalled(gomock.Any(), en).Return(false, errors.New("io"))
				me.EXPECT().DownloadLanguage(gomock.Any(), en).Return(nil)
			},
			wantInstalled: true,
		},
		{
			name:     "download failure leaves state unchanged",
			f:        func(me *mock_packs.MockEngine) { expectDownload(me, en, errors.New("disk full")) },
			wantCode: coreerrors.ErrorPackInstallFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			store := NewMemoryStore()
			r := newRegistryMock(t, ctrl, tt.f, store)

			err := r.Install(context.Background(), en)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, coreerrors.IsCode(err, tt.wantCode))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantInstalled, r.IsInstalled(en))

			raw, found, _ := store.Get(context.Background(), StoreKey)
			if tt.wantInstalled {
				require.True(t, found)
				assert.JSONEq(t, `["en"]`, string(raw))
			} else {
				assert.False(t, found)
			}
		})
	}
}

func TestRegistry_InstallIdempotent(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	r := newRegistryMock(t, ctrl, func(me *mock_packs.MockEngine) { expectDownload(me, es, nil) }, nil)

	require.NoError(t, r.Install(context.Background(), es))
	require.NoError(t, r.Install(context.Background(), es))
	assert.Equal(t, []langid.ID{es}, r.InstalledSet())
}

func TestRegistry_ConcurrentInstallSameIDDownloadsOnce(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	r := newRegistryMock(t, ctrl, func(me *mock_packs.MockEngine) {
		me.EXPECT().IsLanguageInstalled(gomock.Any(), ja).Return(false, nil).Times(1)
		me.EXPECT().DownloadLanguage(gomock.Any(), ja).DoAndReturn(func(context.Context, langid.ID) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		}).Times(1)
	}, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Install(context.Background(), ja)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.True(t, r.IsInstalled(ja))
}

func TestRegistry_PersistenceFailureRollsBack(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mock_packs.NewMockStore(ctrl)
	gomock.InOrder(
		store.EXPECT().Set(gomock.Any(), StoreKey, []byte(`["en"]`)).Return(nil),
		store.EXPECT().Set(gomock.Any(), StoreKey, []byte(`["en","es"]`)).Return(errors.New("write failed")),
		store.EXPECT().Set(gomock.Any(), StoreKey, []byte(`[]`)).Return(errors.New("write failed")),
	)

	r := newRegistryMock(t, ctrl, func(me *mock_packs.MockEngine) {
		expectDownload(me, en, nil)
		expectDownload(me, es, nil)
		me.EXPECT().RemoveLanguage(gomock.Any(), en).Return(nil)
	}, store)

	require.NoError(t, r.Install(context.Background(), en))

	err := r.Install(context.Background(), es)
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.ErrorRegistryPersistence))
	assert.False(t, r.IsInstalled(es))
	assert.Equal(t, []langid.ID{en}, r.InstalledSet())

	err = r.Remove(context.Background(), en)
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.ErrorRegistryPersistence))
	assert.True(t, r.IsInstalled(en))
}

func TestRegistry_Remove(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		f             func(*mock_packs.MockEngine)
		wantCode      coreerrors.ErrorCode
		wantInstalled bool
	}{
		{
			name: "removes after engine confirms",
			f: func(me *mock_packs.MockEngine) {
				me.EXPECT().RemoveLanguage(gomock.Any(), en).Return(nil)
			},
		},
		{
			name: "engine failure keeps pack",
			f: func(me *mock_packs.MockEngine) {
				me.EXPECT().RemoveLanguage(gomock.Any(), en).Return(errors.New("busy"))
			},
			wantCode:      coreerrors.ErrorPackRemoveFailed,
			wantInstalled: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			store := NewMemoryStore()
			require.NoError(t, store.Set(context.Background(), StoreKey, []byte(`["en"]`)))
			r := newRegistryMock(t, ctrl, tt.f, store)
			require.NoError(t, r.Load(context.Background()))

			err := r.Remove(context.Background(), en)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, coreerrors.IsCode(err, tt.wantCode))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantInstalled, r.IsInstalled(en))

			// removing again is a no-op either way once gone
			if !tt.wantInstalled {
				require.NoError(t, r.Remove(context.Background(), en))
			}
		})
	}
}

func TestRegistry_EnsureBaselinePartialFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), StoreKey, []byte(`["en"]`)))

	r := newRegistryMock(t, ctrl, func(me *mock_packs.MockEngine) {
		expectDownload(me, es, nil)
		expectDownload(me, ja, errors.New("network"))
	}, store)
	require.NoError(t, r.Load(context.Background()))

	report := r.EnsureBaseline(context.Background(), []langid.ID{en, es, ja, es})

	assert.Equal(t, []langid.ID{es}, report.Installed)
	assert.Equal(t, []langid.ID{en}, report.Present)
	require.Contains(t, report.Failed, ja)
	assert.True(t, coreerrors.IsCode(report.Failed[ja], coreerrors.ErrorPackInstallFailed))
	assert.Equal(t, []langid.ID{en, es}, r.InstalledSet())
}

func TestRegistry_Load(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		f       func(*mock_packs.MockStore)
		want    []langid.ID
		wantErr bool
	}{
		{
			name: "restores persisted set",
			f: func(ms *mock_packs.MockStore) {
				ms.EXPECT().Get(gomock.Any(), StoreKey).Return([]byte(`["ja","en"]`), true, nil)
			},
			want: []langid.ID{en, ja},
		},
		{
			name: "missing key is empty",
			f: func(ms *mock_packs.MockStore) {
				ms.EXPECT().Get(gomock.Any(), StoreKey).Return(nil, false, nil)
			},
			want: []langid.ID{},
		},
		{
			name: "corrupt payload",
			f: func(ms *mock_packs.MockStore) {
				ms.EXPECT().Get(gomock.Any(), StoreKey).Return([]byte(`{`), true, nil)
			},
			wantErr: true,
		},
		{
			name: "store error",
			f: func(ms *mock_packs.MockStore) {
				ms.EXPECT().Get(gomock.Any(), StoreKey).Return(nil, false, errors.New("conn refused"))
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			store := mock_packs.NewMockStore(ctrl)
			tt.f(store)
			r := newRegistryMock(t, ctrl, nil, store)

			err := r.Load(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, coreerrors.IsCode(err, coreerrors.ErrorRegistryPersistence))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.InstalledSet())
		})
	}
}

func TestRegistry_Subscribe(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	r := newRegistryMock(t, ctrl, func(me *mock_packs.MockEngine) {
		expectDownload(me, en, nil)
		expectDownload(me, es, nil)
	}, nil)

	var events []ChangeEvent
	unsubscribe := r.Subscribe(func(ev ChangeEvent) { events = append(events, ev) })

	require.NoError(t, r.Install(context.Background(), en))
	unsubscribe()
	require.NoError(t, r.Install(context.Background(), es))

	require.Len(t, events, 1)
	assert.Equal(t, ChangeInstalled, events[0].Kind)
	assert.Equal(t, en, events[0].Language)
	assert.Equal(t, []langid.ID{en}, events[0].Installed)
}

func TestKeyedMutex_DifferentIDsDoNotBlock(t *testing.T) {
	t.Parallel()

	k := newKeyedMutex()
	unlockEN := k.Lock(en)

	done := make(chan struct{})
	go func() {
		unlock := k.Lock(es)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on es blocked behind en")
	}
	unlockEN()

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}
