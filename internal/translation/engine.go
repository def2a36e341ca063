/**
 * Translation engines
 *
 * Two interchangeable engines sit behind the arbiter: the local model
 * runtime (on-device, offline) and the cloud translation API. Both take
 * canonical language identifiers only.
 */

package translation

import (
	"context"

	"github.com/adverant/nexus/phototranslate-worker/internal/clients"
	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/adverant/nexus/phototranslate-worker/internal/mode"
)

// Engine translates a single string.
type Engine interface {
	Name() string
	Source() coreerrors.EngineSource
	Translate(ctx context.Context, text string, pair langid.Pair) (string, error)
}

// RuntimeAPI is the subset of the local model runtime client used here.
type RuntimeAPI interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
	DownloadModel(ctx context.Context, language string) error
	DeleteModel(ctx context.Context, language string) error
}

// OnDeviceTranslator drives the local model runtime. The runtime translates
// through a pivot language, so a direction that does not touch the pivot
// needs the pivot model installed as well.
type OnDeviceTranslator struct {
	runtime RuntimeAPI
	packs   mode.PackChecker
	pivot   langid.ID
}

// NewOnDeviceTranslator creates an on-device translator. An empty pivot means
// every installed pair is supported directly.
func NewOnDeviceTranslator(runtime RuntimeAPI, packs mode.PackChecker, pivot langid.ID) *OnDeviceTranslator {
	return &OnDeviceTranslator{runtime: runtime, packs: packs, pivot: pivot}
}

func (t *OnDeviceTranslator) Name() string { return "on-device" }

func (t *OnDeviceTranslator) Source() coreerrors.EngineSource { return coreerrors.EngineOnDevice }

// SupportsPair implements mode.PairSupport.
func (t *OnDeviceTranslator) SupportsPair(source, target langid.ID) bool {
	if t.pivot == "" || source == t.pivot || target == t.pivot {
		return true
	}
	return t.packs.IsInstalled(t.pivot)
}

func (t *OnDeviceTranslator) Translate(ctx context.Context, text string, pair langid.Pair) (string, error) {
	return t.runtime.Translate(ctx, text, string(pair.Source), string(pair.Target))
}

// DownloadModel fetches the runtime's model for id.
func (t *OnDeviceTranslator) DownloadModel(ctx context.Context, id langid.ID) error {
	return t.runtime.DownloadModel(ctx, string(id))
}

// DeleteModel removes the runtime's model for id.
func (t *OnDeviceTranslator) DeleteModel(ctx context.Context, id langid.ID) error {
	return t.runtime.DeleteModel(ctx, string(id))
}

// CloudAPI is the subset of the cloud translate client used here.
type CloudAPI interface {
	Translate(ctx context.Context, text, source, target string) (*clients.TranslateResult, error)
}

// CloudTranslator calls the cloud translation endpoint.
type CloudTranslator struct {
	client CloudAPI
}

func NewCloudTranslator(client CloudAPI) *CloudTranslator {
	return &CloudTranslator{client: client}
}

func (t *CloudTranslator) Name() string { return "cloud" }

func (t *CloudTranslator) Source() coreerrors.EngineSource { return coreerrors.EngineCloud }

func (t *CloudTranslator) Translate(ctx context.Context, text string, pair langid.Pair) (string, error) {
	res, err := t.client.Translate(ctx, text, string(pair.Source), string(pair.Target))
	if err != nil {
		return "", err
	}
	return res.Text, nil
}
