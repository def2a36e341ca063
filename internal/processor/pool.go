package processor

import (
	"context"
	"fmt"

	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/geometry"
	"github.com/adverant/nexus/phototranslate-worker/internal/overlay"
)

// Pool spreads photos over several processors. Each member still admits a
// single photo at a time; a photo is handed to the first idle member and
// PIPELINE_BUSY is returned only when every member is busy.
type Pool struct {
	members []*PhotoProcessor
}

// NewPool creates size processors from cfg.
func NewPool(cfg *ProcessorConfig, size int) (*Pool, error) {
	if size <= 0 {
		size = 1
	}
	pool := &Pool{members: make([]*PhotoProcessor, 0, size)}
	for i := 0; i < size; i++ {
		p, err := NewPhotoProcessor(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create processor %d: %w", i, err)
		}
		pool.members = append(pool.members, p)
	}
	return pool, nil
}

func (pl *Pool) Size() int { return len(pl.members) }

func (pl *Pool) Process(ctx context.Context, req *PhotoRequest) (*PhotoResult, error) {
	var err error
	for _, p := range pl.members {
		var res *PhotoResult
		res, err = p.Process(ctx, req)
		if !coreerrors.IsCode(err, coreerrors.ErrorPipelineBusy) {
			return res, err
		}
	}
	return nil, err
}

func (pl *Pool) Recorrect(result *PhotoResult, display geometry.Size, vp *overlay.Viewport, showAll bool) (*PhotoResult, error) {
	return pl.members[0].Recorrect(result, display, vp, showAll)
}

func (pl *Pool) UpdateJobStatus(ctx context.Context, jobID string, status string, result *PhotoResult, metadata map[string]interface{}) error {
	return pl.members[0].UpdateJobStatus(ctx, jobID, status, result, metadata)
}
