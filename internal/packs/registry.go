/**
 * Language pack registry
 *
 * Tracks which canonical languages have on-device models installed. The set
 * is persisted through a key/value Store on every successful install/remove,
 * and the in-memory view only ever reflects what was actually persisted.
 */

package packs

//go:generate mockgen -source=registry.go -destination=mock/packs_mock.go -package=mock_packs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
	"golang.org/x/sync/errgroup"
)

// StoreKey is where the installed set lives in the Store, as a JSON array.
const StoreKey = "language_packs:installed"

// baselineParallelism bounds concurrent downloads during EnsureBaseline.
const baselineParallelism = 3

// Engine is the on-device model runtime that owns the model files.
type Engine interface {
	IsLanguageInstalled(ctx context.Context, id langid.ID) (bool, error)
	DownloadLanguage(ctx context.Context, id langid.ID) error
	RemoveLanguage(ctx context.Context, id langid.ID) error
}

// Store is durable key/value storage.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ChangeKind describes a registry mutation.
type ChangeKind string

const (
	ChangeInstalled ChangeKind = "installed"
	ChangeRemoved   ChangeKind = "removed"
)

// ChangeEvent is delivered to subscribers after a mutation is persisted.
type ChangeEvent struct {
	Kind      ChangeKind
	Language  langid.ID
	Installed []langid.ID
}

// BaselineReport summarizes an EnsureBaseline run.
type BaselineReport struct {
	Installed []langid.ID
	Present   []langid.ID
	Failed    map[langid.ID]error
}

// Registry is the persisted set of installed language packs.
type Registry struct {
	engine Engine
	store  Store
	logger *logging.Logger

	mu        sync.RWMutex
	installed map[langid.ID]struct{}

	// commitMu orders snapshot writes so concurrent ids never overwrite
	// each other's persisted state.
	commitMu sync.Mutex
	locks    *keyedMutex

	subsMu  sync.Mutex
	subs    map[int]func(ChangeEvent)
	nextSub int
}

// NewRegistry creates an empty registry. Call Load to restore persisted state.
func NewRegistry(engine Engine, store Store, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		engine:    engine,
		store:     store,
		logger:    logger,
		installed: make(map[langid.ID]struct{}),
		locks:     newKeyedMutex(),
		subs:      make(map[int]func(ChangeEvent)),
	}
}

// Load restores the installed set from the Store. A missing key is an empty set.
func (r *Registry) Load(ctx context.Context) error {
	raw, found, err := r.store.Get(ctx, StoreKey)
	if err != nil {
		return coreerrors.NewRegistryPersistenceError("load", "", err)
	}

	set := make(map[langid.ID]struct{})
	if found && len(raw) > 0 {
		var ids []langid.ID
		if err := json.Unmarshal(raw, &ids); err != nil {
			return coreerrors.NewRegistryPersistenceError("load", "", fmt.Errorf("decode installed set: %w", err))
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}

	r.mu.Lock()
	r.installed = set
	r.mu.Unlock()

	r.logger.Info("Language pack registry loaded", "installed", len(set))
	return nil
}

// IsInstalled reports whether id is in the installed set.
func (r *Registry) IsInstalled(id langid.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.installed[id]
	return ok
}

// InstalledSet returns a sorted copy of the installed set.
func (r *Registry) InstalledSet() []langid.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedIDs(r.installed)
}

// Install downloads and records id. It is a no-op when id is already
// installed, and concurrent calls for the same id download at most once.
func (r *Registry) Install(ctx context.Context, id langid.ID) error {
	if r.IsInstalled(id) {
		return nil
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	// another caller may have finished while we waited
	if r.IsInstalled(id) {
		return nil
	}

	present, err := r.engine.IsLanguageInstalled(ctx, id)
	if err != nil {
		r.logger.Debug("Engine install check failed, downloading", "language", id, "error", err)
		present = false
	}
	if !present {
		if err := r.engine.DownloadLanguage(ctx, id); err != nil {
			return coreerrors.NewPackInstallError(string(id), err)
		}
	}

	if err := r.commit(ctx, "install", id, true); err != nil {
		return err
	}

	r.logger.Info("Language pack installed", "language", id, "downloaded", !present)
	return nil
}

// Remove deletes id from the engine and then from the set. Removing an id
// that is not installed is a no-op.
func (r *Registry) Remove(ctx context.Context, id langid.ID) error {
	if !r.IsInstalled(id) {
		return nil
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	if !r.IsInstalled(id) {
		return nil
	}

	if err := r.engine.RemoveLanguage(ctx, id); err != nil {
		return coreerrors.NewPackRemoveError(string(id), err)
	}

	if err := r.commit(ctx, "remove", id, false); err != nil {
		return err
	}

	r.logger.Info("Language pack removed", "language", id)
	return nil
}

// EnsureBaseline installs every id that is missing. Failures are logged and
// reported per id; they never stop the remaining installs.
func (r *Registry) EnsureBaseline(ctx context.Context, ids []langid.ID) BaselineReport {
	report := BaselineReport{Failed: make(map[langid.ID]error)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(baselineParallelism)

	seen := make(map[langid.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if r.IsInstalled(id) {
			report.Present = append(report.Present, id)
			continue
		}

		id := id
		g.Go(func() error {
			err := r.Install(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Warn("Baseline language pack install failed", "language", id, "error", err)
				report.Failed[id] = err
				return nil
			}
			report.Installed = append(report.Installed, id)
			return nil
		})
	}
	_ = g.Wait()

	sortIDSlice(report.Installed)
	sortIDSlice(report.Present)

	r.logger.Info("Baseline language packs ensured",
		"installed", len(report.Installed),
		"present", len(report.Present),
		"failed", len(report.Failed))
	return report
}

// Subscribe registers fn for change events. The returned func unsubscribes.
func (r *Registry) Subscribe(fn func(ChangeEvent)) func() {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	key := r.nextSub
	r.nextSub++
	r.subs[key] = fn

	return func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		delete(r.subs, key)
	}
}

// commit persists the set with id added or removed and swaps it in only
// after the Store accepted it. On failure the in-memory set still matches
// the last persisted snapshot.
func (r *Registry) commit(ctx context.Context, op string, id langid.ID, add bool) error {
	r.commitMu.Lock()

	r.mu.RLock()
	next := make(map[langid.ID]struct{}, len(r.installed)+1)
	for k := range r.installed {
		next[k] = struct{}{}
	}
	r.mu.RUnlock()

	if add {
		next[id] = struct{}{}
	} else {
		delete(next, id)
	}

	ids := sortedIDs(next)
	payload, err := json.Marshal(ids)
	if err == nil {
		err = r.store.Set(ctx, StoreKey, payload)
	}
	if err != nil {
		r.commitMu.Unlock()
		r.logger.Error("Failed to persist language pack registry, keeping last persisted state",
			"operation", op,
			"language", id,
			"error", err)
		return coreerrors.NewRegistryPersistenceError(op, string(id), err)
	}

	r.mu.Lock()
	r.installed = next
	r.mu.Unlock()
	r.commitMu.Unlock()

	kind := ChangeInstalled
	if !add {
		kind = ChangeRemoved
	}
	r.notify(ChangeEvent{Kind: kind, Language: id, Installed: ids})
	return nil
}

func (r *Registry) notify(ev ChangeEvent) {
	r.subsMu.Lock()
	fns := make([]func(ChangeEvent), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func sortedIDs(set map[langid.ID]struct{}) []langid.ID {
	ids := make([]langid.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sortIDSlice(ids)
	return ids
}

func sortIDSlice(ids []langid.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
