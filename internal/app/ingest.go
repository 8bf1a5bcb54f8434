package service

import (
	"context"
	"errors"
	"strings"

	"github.com/okian/adroute/internal/adapters/repository"
	"github.com/okian/adroute/internal/domain/index"
	"github.com/okian/adroute/internal/domain/model"
	"github.com/okian/adroute/internal/domain/registry"
	"github.com/okian/adroute/internal/domain/types"
	"github.com/okian/adroute/pkg/logger"
	"github.com/okian/adroute/pkg/metrics"
)

// RegisterBuyer validates b, assigns offer ids, and replaces any previous
// registration of the same id. The record, the removal of index entries the
// new criteria no longer cover, and the new index entries commit together,
// guarded on the record read beforehand. A lost race is retried.
func (s *Service) RegisterBuyer(ctx context.Context, b *model.Buyer) error {
	const op = "service.register_buyer"

	if err := model.Validate(b); err != nil {
		metrics.RecordValidationFailure()
		s.logger.Debug(ctx, "rejected buyer", logger.Error(err))
		return err
	}
	_, reg, err := s.components()
	if err != nil {
		return err
	}
	b.AssignOfferIDs()

	for attempt := 0; ; attempt++ {
		err := s.registerOnce(ctx, reg, b)
		if !errors.Is(err, model.ErrConflict) {
			return err
		}
		metrics.RecordRegistrationConflict()
		if attempt >= s.ingestMaxRetries {
			s.logger.Warn(ctx, "registration kept losing write races",
				logger.String("buyerID", b.ID),
				logger.Int("attempts", attempt+1),
			)
			return model.NewError(op, model.ErrStore, model.MsgStore, err)
		}
		s.logger.Debug(ctx, "registration raced, retrying",
			logger.String("buyerID", b.ID),
			logger.Int("attempt", attempt+1),
		)
	}
}

func (s *Service) registerOnce(ctx context.Context, reg *registry.Registry, b *model.Buyer) error {
	const op = "service.register_buyer"

	prior, err := reg.Snapshot(ctx, b.ID)
	switch {
	case errors.Is(err, registry.ErrCorrupt):
		// Overwrite it. Resolution drops and repairs the entries it no longer covers.
		s.logger.Warn(ctx, "replacing unreadable buyer record",
			logger.String("buyerID", b.ID),
			logger.Error(err),
		)
	case err != nil:
		return err
	}

	batch := repository.NewBatch().Expect(registry.Key(b.ID), prior.Blob)

	removed := 0
	for _, r := range index.Diff(prior.Buyer, b) {
		index.StageRemove(batch, r.Ref, r.Keys)
		removed += len(r.Keys)
	}
	if _, err := reg.Stage(batch, b); err != nil {
		return model.NewError(op, model.ErrStore, model.MsgStore, err)
	}
	written := 0
	for i := range b.Offers {
		ref := model.Ref{BuyerID: b.ID, OfferID: b.Offers[i].ID}
		keys := index.KeysFor(&b.Offers[i])
		index.StageAdd(batch, ref, keys)
		written += len(keys)
	}

	if err := s.store.Commit(ctx, batch); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return err
		}
		return model.NewError(op, model.ErrStore, model.MsgStore, err)
	}

	metrics.RecordBuyerRegistered()
	metrics.RecordIndexEntriesWritten(written)
	metrics.RecordIndexEntriesRemoved(removed)
	s.logger.Info(ctx, "buyer registered",
		logger.String("buyerID", b.ID),
		logger.Int("offers", len(b.Offers)),
		logger.Int("entriesWritten", written),
		logger.Int("entriesRemoved", removed),
		logger.Bool("replaced", prior.Blob != nil),
	)
	return nil
}

// GetBuyer returns the stored buyer with internal offer ids removed.
func (s *Service) GetBuyer(ctx context.Context, id string) (types.BuyerView, error) {
	_, reg, err := s.components()
	if err != nil {
		return types.BuyerView{}, err
	}
	if strings.TrimSpace(id) == "" {
		return types.BuyerView{}, model.NewError("service.get_buyer", model.ErrNotFound, model.MsgBuyerNotFound, nil)
	}
	b, err := reg.Get(ctx, id)
	if err != nil {
		return types.BuyerView{}, err
	}
	return registry.Project(b), nil
}
