// Package index maintains the criteria index: one set per dimension value,
// holding the encoded references of every offer that targets that value.
package index

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/okian/adroute/internal/adapters/repository"
	"github.com/okian/adroute/internal/domain/model"
	"github.com/okian/adroute/pkg/logger"
	"github.com/okian/adroute/pkg/metrics"
)

// Key returns the index key of one dimension value, e.g. "device:ios".
func Key(d model.Dimension, value string) string {
	return string(d) + ":" + value
}

// KeysFor lists every index key an offer is filed under, in dimension order.
// Duplicate criteria values yield a single key.
func KeysFor(o *model.Offer) []string {
	if o == nil || o.Criteria == nil {
		return nil
	}
	var keys []string
	seen := make(map[string]struct{})
	for _, d := range model.Dimensions() {
		for _, v := range o.Criteria.Values(d) {
			k := Key(d, v)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// QueryKeys returns the four keys a placement request is intersected over.
func QueryKeys(q model.Query) []string {
	return []string{
		Key(model.DimensionHour, strconv.Itoa(q.Hour)),
		Key(model.DimensionDay, strconv.Itoa(q.Day)),
		Key(model.DimensionDevice, q.Device),
		Key(model.DimensionState, q.State),
	}
}

// StageAdd queues ref into every key.
func StageAdd(b *repository.Batch, ref model.Ref, keys []string) {
	member := ref.String()
	for _, k := range keys {
		b.AddToSet(k, member)
	}
}

// StageRemove queues removal of ref from every key.
func StageRemove(b *repository.Batch, ref model.Ref, keys []string) {
	member := ref.String()
	for _, k := range keys {
		b.RemoveFromSet(k, member)
	}
}

// Removal is a reference that must leave the listed keys.
type Removal struct {
	Ref  model.Ref
	Keys []string
}

// Diff returns the index entries of prior that next no longer carries.
// Both buyers must have offer ids assigned; a nil prior yields nothing.
func Diff(prior, next *model.Buyer) []Removal {
	if prior == nil {
		return nil
	}
	kept := make(map[model.Ref]map[string]struct{})
	if next != nil {
		for i := range next.Offers {
			ref := model.Ref{BuyerID: next.ID, OfferID: next.Offers[i].ID}
			set := kept[ref]
			if set == nil {
				set = make(map[string]struct{})
				kept[ref] = set
			}
			for _, k := range KeysFor(&next.Offers[i]) {
				set[k] = struct{}{}
			}
		}
	}

	var out []Removal
	for i := range prior.Offers {
		offerID := prior.Offers[i].ID
		if offerID == "" {
			offerID = model.OfferID(prior.ID, i)
		}
		ref := model.Ref{BuyerID: prior.ID, OfferID: offerID}
		var gone []string
		for _, k := range KeysFor(&prior.Offers[i]) {
			if _, ok := kept[ref][k]; !ok {
				gone = append(gone, k)
			}
		}
		if len(gone) > 0 {
			out = append(out, Removal{Ref: ref, Keys: gone})
		}
	}
	return out
}

// Index reads and repairs the criteria index held in a Store.
type Index struct {
	store  repository.Store
	logger logger.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

// New returns an Index over store.
func New(store repository.Store, opts ...Option) *Index {
	ix := &Index{store: store}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.logger == nil {
		ix.logger = logger.Get().Named("index")
	}
	return ix
}

// Intersect returns the references filed under all four keys of q, sorted by
// buyer id then offer id. Members that do not decode are skipped.
func (ix *Index) Intersect(ctx context.Context, q model.Query) ([]model.Ref, error) {
	keys := QueryKeys(q)
	members, err := ix.store.IntersectSets(ctx, keys...)
	if err != nil {
		return nil, model.NewError("index.intersect", model.ErrStore, model.MsgStore, err)
	}
	refs := make([]model.Ref, 0, len(members))
	for _, m := range members {
		ref, err := model.ParseRef(m)
		if err != nil {
			metrics.RecordStaleReference("malformed")
			ix.logger.Warn(ctx, "skipping malformed index member",
				logger.String("member", m),
				logger.Error(err),
			)
			continue
		}
		refs = append(refs, ref)
	}
	slices.SortFunc(refs, func(a, b model.Ref) int {
		if c := strings.Compare(a.BuyerID, b.BuyerID); c != 0 {
			return c
		}
		return strings.Compare(a.OfferID, b.OfferID)
	})
	return refs, nil
}

// Prune removes ref from keys in one commit that only applies while the
// guard still holds. A violated guard returns repository.ErrConflict.
func (ix *Index) Prune(ctx context.Context, ref model.Ref, keys []string, guard repository.Guard) error {
	if len(keys) == 0 {
		return nil
	}
	b := repository.NewBatch().Expect(guard.Key, guard.Blob)
	StageRemove(b, ref, keys)
	if err := ix.store.Commit(ctx, b); err != nil {
		return fmt.Errorf("prune %s: %w", ref, err)
	}
	return nil
}
