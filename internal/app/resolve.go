package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/okian/adroute/internal/domain/index"
	"github.com/okian/adroute/internal/domain/model"
	"github.com/okian/adroute/internal/domain/ranking"
	"github.com/okian/adroute/pkg/logger"
	"github.com/okian/adroute/pkg/metrics"
)

// Resolution outcomes recorded in metrics.
const (
	outcomeMatched = "matched"
	outcomeNoMatch = "no_match"
	outcomeInvalid = "invalid"
	outcomeError   = "error"
)

// Stale reference reasons recorded in metrics.
const (
	staleBuyerMissing = "buyer_missing"
	staleOfferMissing = "offer_missing"
	staleFetchFailed  = "fetch_failed"
	staleCriteria     = "criteria_mismatch"
)

// ResolveRequest returns the location of the highest-value offer whose
// criteria cover the hour and day of timestamp (in the configured zone),
// device and state.
func (s *Service) ResolveRequest(ctx context.Context, timestamp, device, state string) (location string, err error) {
	const op = "service.resolve_request"

	start := time.Now()
	outcome := outcomeError
	defer func() {
		metrics.RecordResolution(outcome)
		metrics.RecordResolutionLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	ix, reg, err := s.components()
	if err != nil {
		return "", err
	}

	ts, err := model.ParseTimestamp(timestamp)
	if err != nil {
		outcome = outcomeInvalid
		return "", err
	}
	q, err := model.NewQuery(ts, s.location, device, state)
	if err != nil {
		outcome = outcomeInvalid
		return "", err
	}

	refs, err := ix.Intersect(ctx, q)
	if err != nil {
		return "", err
	}
	metrics.RecordResolutionCandidates(len(refs))
	if len(refs) == 0 {
		outcome = outcomeNoMatch
		return "", model.NewError(op, model.ErrNoMatch, model.MsgNoMatch, nil)
	}

	// refs are sorted by buyer id, so ids come out sorted and unique.
	wanted := make(map[model.Ref]struct{}, len(refs))
	var ids []string
	for _, r := range refs {
		wanted[r] = struct{}{}
		if len(ids) == 0 || ids[len(ids)-1] != r.BuyerID {
			ids = append(ids, r.BuyerID)
		}
	}

	queried := index.QueryKeys(q)
	buyers := make([]*model.Buyer, 0, len(ids))
	var faults int
	var lastFault error
	for _, l := range reg.Fetch(ctx, ids) {
		switch {
		case l.Err == nil:
			buyers = append(buyers, l.Buyer)
		case errors.Is(l.Err, model.ErrNotFound):
			for _, r := range refs {
				if r.BuyerID == l.ID {
					s.stale(ctx, r, staleBuyerMissing, queried)
				}
			}
		default:
			faults++
			lastFault = l.Err
			metrics.RecordStaleReference(staleFetchFailed)
			s.logger.Warn(ctx, "skipping candidate buyer",
				logger.String("buyerID", l.ID),
				logger.Error(l.Err),
			)
		}
	}
	if len(buyers) == 0 && faults > 0 {
		return "", model.NewError(op, model.ErrStore, model.MsgStore, lastFault)
	}

	cands := ranking.Flatten(buyers, wanted)
	if len(cands) < len(refs) {
		s.reportMissingOffers(ctx, buyers, cands, refs, queried)
	}
	cands = s.dropUncovered(ctx, cands, queried)

	best, ok := ranking.Select(cands)
	if !ok {
		outcome = outcomeNoMatch
		return "", model.NewError(op, model.ErrNoMatch, model.MsgNoMatch, nil)
	}
	outcome = outcomeMatched
	s.logger.Debug(ctx, "request resolved",
		logger.String("buyerID", best.BuyerID),
		logger.Int("position", best.Position),
		logger.Float64("value", best.Offer.Value),
		logger.Int("candidates", len(cands)),
	)
	return best.Offer.Location, nil
}

// reportMissingOffers flags refs whose buyer was fetched but no longer lists the offer.
func (s *Service) reportMissingOffers(ctx context.Context, buyers []*model.Buyer, cands []ranking.Candidate, refs []model.Ref, keys []string) {
	fetched := make(map[string]struct{}, len(buyers))
	for _, b := range buyers {
		fetched[b.ID] = struct{}{}
	}
	found := make(map[model.Ref]struct{}, len(cands))
	for _, c := range cands {
		found[model.Ref{BuyerID: c.BuyerID, OfferID: c.Offer.ID}] = struct{}{}
	}
	for _, r := range refs {
		if _, ok := fetched[r.BuyerID]; !ok {
			continue
		}
		if _, ok := found[r]; !ok {
			s.stale(ctx, r, staleOfferMissing, keys)
		}
	}
}

// dropUncovered removes candidates whose current criteria do not list every
// queried key. Such entries outlive a record that was overwritten without
// its prior index entries being known.
func (s *Service) dropUncovered(ctx context.Context, cands []ranking.Candidate, keys []string) []ranking.Candidate {
	kept := cands[:0]
	for _, c := range cands {
		if covers(&c.Offer, keys) {
			kept = append(kept, c)
			continue
		}
		s.stale(ctx, model.Ref{BuyerID: c.BuyerID, OfferID: c.Offer.ID}, staleCriteria, keys)
	}
	return kept
}

func covers(o *model.Offer, keys []string) bool {
	own := index.KeysFor(o)
	for _, k := range keys {
		if !slices.Contains(own, k) {
			return false
		}
	}
	return true
}

// stale records a reference that points at nothing and queues its repair.
func (s *Service) stale(ctx context.Context, ref model.Ref, reason string, keys []string) {
	metrics.RecordStaleReference(reason)
	s.logger.Warn(ctx, "stale index reference",
		logger.String("ref", ref.String()),
		logger.String("reason", reason),
	)
	s.scheduleRepair(ctx, model.RepairJob{Ref: ref, Keys: keys})
}
