// Package registry stores buyer records and owns their single decode step.
package registry

import (
	"context"
	"errors"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/adroute/internal/adapters/repository"
	"github.com/okian/adroute/internal/domain/model"
	"github.com/okian/adroute/internal/domain/types"
	"github.com/okian/adroute/pkg/logger"
)

const (
	keyPrefix = "buyer:"

	defaultFetchTimeout = 100 * time.Millisecond
)

// Key returns the store key of a buyer record.
func Key(id string) string {
	return keyPrefix + id
}

// Record is a stored buyer together with the exact bytes it was read from.
// Both are nil when the buyer is absent.
type Record struct {
	Buyer *model.Buyer
	Blob  []byte
}

// Lookup is the outcome of fetching one buyer.
type Lookup struct {
	ID    string
	Buyer *model.Buyer
	Err   error
}

// Registry reads and stages buyer records.
type Registry struct {
	store            repository.Store
	codec            Codec
	fetchTimeout     time.Duration
	fetchConcurrency int
	logger           logger.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithCodec selects the encoding of written records.
func WithCodec(c Codec) Option {
	return func(r *Registry) {
		if c != "" {
			r.codec = c
		}
	}
}

// WithFetchTimeout bounds the bulk read in Fetch and each fallback read.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithFetchConcurrency caps concurrent fallback reads.
func WithFetchConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.fetchConcurrency = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a Registry over store.
func New(store repository.Store, opts ...Option) *Registry {
	r := &Registry{
		store:            store,
		codec:            CodecJSON,
		fetchTimeout:     defaultFetchTimeout,
		fetchConcurrency: runtime.NumCPU() * 4,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("registry")
	}
	return r
}

// Codec returns the codec used for writes.
func (r *Registry) Codec() Codec { return r.codec }

// Get returns the stored buyer, or an error of kind model.ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*model.Buyer, error) {
	rec, err := r.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Buyer == nil {
		return nil, model.NewError("registry.get", model.ErrNotFound, model.MsgBuyerNotFound, nil)
	}
	return rec.Buyer, nil
}

// Snapshot reads the current record of id. An absent buyer is not an error.
// A record that fails to decode is returned with its Blob set and an error
// wrapping ErrCorrupt, so callers can still guard on it.
func (r *Registry) Snapshot(ctx context.Context, id string) (Record, error) {
	blob, err := r.store.Get(ctx, Key(id))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return Record{}, nil
	case err != nil:
		return Record{}, model.NewError("registry.get", model.ErrStore, model.MsgStore, err)
	}
	b, err := Decode(blob)
	if err != nil {
		return Record{Blob: blob}, model.NewError("registry.get", model.ErrStore, model.MsgStore, err)
	}
	return Record{Buyer: b, Blob: blob}, nil
}

// Stage encodes b with the registry codec, queues its Put, and returns the blob.
func (r *Registry) Stage(batch *repository.Batch, b *model.Buyer) ([]byte, error) {
	blob, err := r.codec.Encode(b)
	if err != nil {
		return nil, err
	}
	batch.Put(Key(b.ID), blob)
	return blob, nil
}

// Fetch reads every id. The result is aligned with ids; each entry carries
// either a buyer or its own error. A failed bulk read falls back to bounded
// concurrent single reads so one slow key cannot sink the others.
func (r *Registry) Fetch(ctx context.Context, ids []string) []Lookup {
	out := make([]Lookup, len(ids))
	if len(ids) == 0 {
		return out
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		out[i].ID = id
		keys[i] = Key(id)
	}

	bctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	blobs, err := r.store.BulkGet(bctx, keys...)
	cancel()
	if err == nil {
		for i, blob := range blobs {
			out[i].Buyer, out[i].Err = decodeLookup(blob)
		}
		return out
	}
	if ctx.Err() != nil {
		for i := range out {
			out[i].Err = model.NewError("registry.fetch", model.ErrStore, model.MsgStore, ctx.Err())
		}
		return out
	}

	r.logger.Warn(ctx, "bulk fetch failed, falling back to single reads",
		logger.Int("buyers", len(ids)),
		logger.Error(err),
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fetchConcurrency)
	for i := range ids {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, r.fetchTimeout)
			defer cancel()
			blob, err := r.store.Get(sctx, keys[i])
			switch {
			case errors.Is(err, repository.ErrNotFound):
				out[i].Err = model.NewError("registry.fetch", model.ErrNotFound, model.MsgBuyerNotFound, nil)
			case err != nil:
				out[i].Err = model.NewError("registry.fetch", model.ErrStore, model.MsgStore, err)
			default:
				out[i].Buyer, out[i].Err = decodeLookup(blob)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func decodeLookup(blob []byte) (*model.Buyer, error) {
	if blob == nil {
		return nil, model.NewError("registry.fetch", model.ErrNotFound, model.MsgBuyerNotFound, nil)
	}
	b, err := Decode(blob)
	if err != nil {
		return nil, model.NewError("registry.fetch", model.ErrStore, model.MsgStore, err)
	}
	return b, nil
}

// Project converts a stored buyer to its public view, dropping offer ids.
func Project(b *model.Buyer) types.BuyerView {
	view := types.BuyerView{ID: b.ID, Offers: make([]types.OfferView, 0, len(b.Offers))}
	for _, o := range b.Offers {
		ov := types.OfferView{Value: o.Value, Location: o.Location}
		if o.Criteria != nil {
			ov.Criteria = types.CriteriaView{
				Device: nonNil(o.Criteria.Device),
				Hour:   nonNil(o.Criteria.Hour),
				Day:    nonNil(o.Criteria.Day),
				State:  nonNil(o.Criteria.State),
			}
		} else {
			ov.Criteria = types.CriteriaView{Device: []string{}, Hour: []int{}, Day: []int{}, State: []string{}}
		}
		view.Offers = append(view.Offers, ov)
	}
	return view
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
