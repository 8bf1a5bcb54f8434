package service

import (
	"context"
	"errors"

	"github.com/okian/adroute/internal/adapters/repository"
	"github.com/okian/adroute/internal/domain/index"
	"github.com/okian/adroute/internal/domain/model"
	"github.com/okian/adroute/internal/domain/registry"
	"github.com/okian/adroute/pkg/logger"
	"github.com/okian/adroute/pkg/metrics"
)

// scheduleRepair queues job unless a repair of the same ref is in flight.
// A full queue drops the job; the next resolution hitting the ref retries.
func (s *Service) scheduleRepair(ctx context.Context, job model.RepairJob) {
	key := job.Ref.String()
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordRepairDuplicate()
		return
	}
	if !s.repairQueue.Enqueue(ctx, job) {
		s.deduper.Unrecord(ctx, key)
		s.logger.Warn(ctx, "repair queue rejected job", logger.String("ref", key))
	}
}

// repair prunes the keys of job that the buyer's current record does not
// justify. The prune only applies if the record is unchanged since it was read.
func (s *Service) repair(ctx context.Context, job model.RepairJob) error {
	defer s.deduper.Unrecord(ctx, job.Ref.String())

	rec, err := s.registry.Snapshot(ctx, job.Ref.BuyerID)
	if err != nil {
		metrics.RecordRepairSkipped()
		return err
	}

	stale := job.Keys
	if rec.Buyer != nil {
		stale = unjustifiedKeys(rec.Buyer, job.Ref.OfferID, job.Keys)
	}
	if len(stale) == 0 {
		metrics.RecordRepairSkipped()
		return nil
	}

	guard := repository.Guard{Key: registry.Key(job.Ref.BuyerID), Blob: rec.Blob}
	if err := s.index.Prune(ctx, job.Ref, stale, guard); err != nil {
		metrics.RecordRepairSkipped()
		if errors.Is(err, model.ErrConflict) {
			s.logger.Debug(ctx, "buyer changed during repair, skipping", logger.String("ref", job.Ref.String()))
			return nil
		}
		return err
	}
	metrics.RecordRepairPruned(len(stale))
	s.logger.Info(ctx, "pruned stale index reference",
		logger.String("ref", job.Ref.String()),
		logger.Int("keys", len(stale)),
	)
	return nil
}

// unjustifiedKeys returns the keys of candidates that offerID of b is not filed under.
func unjustifiedKeys(b *model.Buyer, offerID string, candidates []string) []string {
	var own map[string]struct{}
	for i := range b.Offers {
		if b.Offers[i].ID != offerID {
			continue
		}
		own = make(map[string]struct{})
		for _, k := range index.KeysFor(&b.Offers[i]) {
			own[k] = struct{}{}
		}
		break
	}
	var out []string
	for _, k := range candidates {
		if _, ok := own[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}
