package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"anpr-watch/internal/domain/anpr"
	"anpr-watch/internal/utils"
)

// ConfirmationStore is the persistent side of the confirmation log.
type ConfirmationStore interface {
	FindConfirmations(ctx context.Context, plate *string, hitsOnly bool, from, to *time.Time, limit, offset int) ([]anpr.Confirmation, error)
	GetLastConfirmationTime(ctx context.Context, plate string) (*time.Time, error)
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

// ConfirmationQuery is the filter accepted by the confirmations API.
type ConfirmationQuery struct {
	Plate    *string
	HitsOnly bool
	From     *string
	To       *string
	Limit    int
	Offset   int
}

// HistoryService answers confirmation queries, from the store when one is
// configured and from the session's in-memory log otherwise.
type HistoryService struct {
	session *Session
	store   ConfirmationStore
	log     zerolog.Logger
}

func NewHistoryService(session *Session, store ConfirmationStore, log zerolog.Logger) *HistoryService {
	return &HistoryService{
		session: session,
		store:   store,
		log:     log,
	}
}

func (h *HistoryService) FindConfirmations(ctx context.Context, q ConfirmationQuery) ([]anpr.Confirmation, error) {
	var plate *string
	if q.Plate != nil {
		normalized, ok := utils.NormalizePlate(*q.Plate)
		if !ok {
			return nil, fmt.Errorf("%w: plate %q is not a valid plate", ErrInvalidInput, *q.Plate)
		}
		plate = &normalized
	}

	var fromTime, toTime *time.Time
	if q.From != nil && *q.From != "" {
		t, err := time.Parse(time.RFC3339, *q.From)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		fromTime = &t
	}
	if q.To != nil && *q.To != "" {
		t, err := time.Parse(time.RFC3339, *q.To)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		toTime = &t
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	if h.store != nil {
		found, err := h.store.FindConfirmations(ctx, plate, q.HitsOnly, fromTime, toTime, limit, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to find confirmations: %w", err)
		}
		return found, nil
	}

	filter := ""
	if plate != nil {
		filter = *plate
	}
	recent := h.session.RecentConfirmations(filter, q.HitsOnly, recentConfirmations)

	out := make([]anpr.Confirmation, 0, limit)
	skipped := 0
	for _, c := range recent {
		if fromTime != nil && c.At.Before(*fromTime) {
			continue
		}
		if toTime != nil && c.At.After(*toTime) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// LastConfirmation returns when plate was last confirmed, or nil if never.
func (h *HistoryService) LastConfirmation(ctx context.Context, plate string) (*time.Time, error) {
	normalized, ok := utils.NormalizePlate(plate)
	if !ok {
		return nil, fmt.Errorf("%w: plate %q is not a valid plate", ErrInvalidInput, plate)
	}

	if h.store != nil {
		last, err := h.store.GetLastConfirmationTime(ctx, normalized)
		if err != nil {
			return nil, fmt.Errorf("failed to get last confirmation: %w", err)
		}
		return last, nil
	}

	recent := h.session.RecentConfirmations(normalized, false, 1)
	if len(recent) == 0 {
		return nil, nil
	}
	at := recent[0].At
	return &at, nil
}

// CleanupOldConfirmations deletes stored confirmations older than days.
func (h *HistoryService) CleanupOldConfirmations(ctx context.Context, days int) (int64, error) {
	if h.store == nil {
		return 0, nil
	}
	deleted, err := h.store.DeleteOlderThan(ctx, days)
	if err != nil {
		h.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old confirmations")
		return 0, err
	}
	if deleted > 0 {
		h.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old confirmations")
	}
	return deleted, nil
}
