package aggregates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Totals is the cached count and sum for one aggregate in one namespace.
type Totals struct {
	Count int64 `json:"count"`
	Sum   int64 `json:"sum"`
}

// Totals reads the cached counters. A namespace that never had entries reports zero.
func (m *Maintainer) Totals(ctx context.Context, aggregate enums.Aggregate, namespace uuid.UUID) (Totals, error) {
	var row models.AggregateTotal
	err := m.db.WithContext(ctx).
		Where("aggregate = ? AND namespace = ?", aggregate, namespace).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Totals{}, nil
	}
	if err != nil {
		return Totals{}, fmt.Errorf("load aggregate totals: %w", err)
	}
	return Totals{Count: row.EntryCount, Sum: row.SumTotal}, nil
}

func (m *Maintainer) Count(ctx context.Context, aggregate enums.Aggregate, namespace uuid.UUID) (int64, error) {
	t, err := m.Totals(ctx, aggregate, namespace)
	return t.Count, err
}

func (m *Maintainer) Sum(ctx context.Context, aggregate enums.Aggregate, namespace uuid.UUID) (int64, error) {
	t, err := m.Totals(ctx, aggregate, namespace)
	return t.Sum, err
}

// CountBetween counts entries whose order key falls in [from, to).
func (m *Maintainer) CountBetween(ctx context.Context, aggregate enums.Aggregate, namespace uuid.UUID, from, to time.Time) (int64, error) {
	var count int64
	err := m.db.WithContext(ctx).
		Model(&models.AggregateEntry{}).
		Where("aggregate = ? AND namespace = ? AND order_key >= ? AND order_key < ?", aggregate, namespace, from.UTC(), to.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count aggregate range: %w", err)
	}
	return count, nil
}

// Snapshot returns totals for every aggregate in a namespace.
func (m *Maintainer) Snapshot(ctx context.Context, namespace uuid.UUID) (map[enums.Aggregate]Totals, error) {
	var rows []models.AggregateTotal
	if err := m.db.WithContext(ctx).Where("namespace = ?", namespace).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load aggregate snapshot: %w", err)
	}
	out := make(map[enums.Aggregate]Totals, len(definitions))
	for _, def := range definitions {
		out[def.aggregate] = Totals{}
	}
	for _, row := range rows {
		out[row.Aggregate] = Totals{Count: row.EntryCount, Sum: row.SumTotal}
	}
	return out, nil
}
