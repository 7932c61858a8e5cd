package engagement

import (
	"context"
	"errors"
	"fmt"

	"github.com/GetStream/party-engagement/party"
	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
)

// Registry holds the live parties of a process. Every party shares the
// registry options and its load pool.
type Registry struct {
	opts    Options
	parties *xsync.Map[string, *Party]
	pool    pond.Pool
}

// NewRegistry returns a Registry whose initial party loads run on at most
// loadWorkers concurrent reads.
func NewRegistry(opts Options, loadWorkers int) *Registry {
	if loadWorkers <= 0 {
		loadWorkers = 8
	}
	return &Registry{
		opts:    opts.withDefaults(),
		parties: xsync.NewMap[string, *Party](),
		pool:    pond.NewPool(loadWorkers, pond.WithQueueSize(loadWorkers*16)),
	}
}

// Party returns the party with the given ID, creating it on first use.
func (r *Registry) Party(id string) *Party {
	p, _ := r.parties.LoadOrCompute(id, func() (*Party, bool) {
		return NewParty(id, r.opts), false
	})
	return p
}

// Open returns the party with the given ID, loading it from loader the
// first time, whether the party was created by Open, Party or Ingest. A nil
// loader falls back to the registry's Options.Loader; without either the
// party is returned unloaded.
//
// A partial load returns the party together with its *party.PartialLoadError.
// A load that failed entirely returns the error and is retried by the next
// Open. Callers racing the first load wait for it.
func (r *Registry) Open(ctx context.Context, id string, loader Loader) (*Party, error) {
	if loader == nil {
		loader = r.opts.Loader
	}
	p := r.Party(id)
	if loader == nil {
		return p, nil
	}
	if err := p.ensureLoaded(ctx, loader, r.pool); err != nil {
		var partial *party.PartialLoadError
		if errors.As(err, &partial) {
			return p, err
		}
		return nil, err
	}
	return p, nil
}

// Ingest routes a realtime event to its party, loading the party first when
// the registry has a loader. Events are applied to partially loaded parties.
func (r *Registry) Ingest(ctx context.Context, e Event) error {
	if e.PartyID == "" {
		return party.NewValidationError("PartyID", "is required")
	}
	p, err := r.Open(ctx, e.PartyID, nil)
	if err != nil {
		var partial *party.PartialLoadError
		if !errors.As(err, &partial) {
			return fmt.Errorf("open party %s: %w", e.PartyID, err)
		}
	}
	return p.Ingest(ctx, e)
}

// Remove drops a party, for example when it ended.
func (r *Registry) Remove(id string) {
	r.parties.Delete(id)
}

// Len returns the number of live parties.
func (r *Registry) Len() int {
	return r.parties.Size()
}

// Close stops the load pool after running loads finish.
func (r *Registry) Close() {
	r.pool.StopAndWait()
}
