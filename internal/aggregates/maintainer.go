package aggregates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type MaintainerParams struct {
	DB     *gorm.DB
	Tx     txRunner
	Logger *logger.Logger
}

// Maintainer keeps aggregate_entries and aggregate_totals paired 1:1 with base
// rows. Mutations always run on the caller's transaction so the base-table
// write and the aggregate write commit together.
type Maintainer struct {
	db   *gorm.DB
	tx   txRunner
	logg *logger.Logger
}

func NewMaintainer(params MaintainerParams) (*Maintainer, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Maintainer{db: params.DB, tx: params.Tx, logg: params.Logger}, nil
}

func validateEntry(e Entry) error {
	if !e.Aggregate.IsValid() {
		return fmt.Errorf("unknown aggregate %q", e.Aggregate)
	}
	if e.Namespace == uuid.Nil || e.RecordID == uuid.Nil {
		return errors.New("aggregate entry requires namespace and record id")
	}
	return nil
}

// Insert adds the entry for a new base row. Inserting an entry that already exists
// leaves the aggregate untouched.
func (m *Maintainer) Insert(ctx context.Context, tx *gorm.DB, e Entry) error {
	if tx == nil {
		return errors.New("aggregate insert requires a transaction")
	}
	if err := validateEntry(e); err != nil {
		return err
	}
	if e.OrderKey.IsZero() {
		e.OrderKey = time.Now().UTC()
	}

	row := &models.AggregateEntry{
		Aggregate: e.Aggregate,
		Namespace: e.Namespace,
		RecordID:  e.RecordID,
		OrderKey:  e.OrderKey,
		SumValue:  e.SumValue,
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "aggregate"}, {Name: "record_id"}},
			DoNothing: true,
		}).
		Create(row)
	if result.Error != nil {
		return fmt.Errorf("insert aggregate entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		m.logg.Debug(m.entryCtx(ctx, e), "aggregate entry already present")
		return nil
	}
	return adjustTotals(ctx, tx, e.Aggregate, e.Namespace, 1, e.SumValue)
}

// Delete removes the entry mirroring recordID. A missing entry is tolerated and
// logged because aggregates may drift during partial failures.
func (m *Maintainer) Delete(ctx context.Context, tx *gorm.DB, aggregate enums.Aggregate, recordID uuid.UUID) error {
	if tx == nil {
		return errors.New("aggregate delete requires a transaction")
	}
	var existing models.AggregateEntry
	err := tx.WithContext(ctx).
		Where("aggregate = ? AND record_id = ?", aggregate, recordID).
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m.logg.Warn(m.logg.WithFields(ctx, map[string]any{
			"aggregate": aggregate.String(),
			"record_id": recordID.String(),
		}), "aggregate entry missing on delete")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load aggregate entry: %w", err)
	}

	result := tx.WithContext(ctx).Delete(&models.AggregateEntry{}, "id = ?", existing.ID)
	if result.Error != nil {
		return fmt.Errorf("delete aggregate entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil
	}
	return adjustTotals(ctx, tx, aggregate, existing.Namespace, -1, -existing.SumValue)
}

// Replace swaps the entry for old with next, used when a mutation changes the
// value an aggregate keys or sums on.
func (m *Maintainer) Replace(ctx context.Context, tx *gorm.DB, old, next Entry) error {
	if err := validateEntry(next); err != nil {
		return err
	}
	if err := m.Delete(ctx, tx, old.Aggregate, old.RecordID); err != nil {
		return err
	}
	return m.Insert(ctx, tx, next)
}

func adjustTotals(ctx context.Context, tx *gorm.DB, aggregate enums.Aggregate, namespace uuid.UUID, countDelta, sumDelta int64) error {
	now := time.Now().UTC()
	if countDelta < 0 {
		// decrements never create a totals row
		err := tx.WithContext(ctx).
			Model(&models.AggregateTotal{}).
			Where("aggregate = ? AND namespace = ? AND entry_count > 0", aggregate, namespace).
			UpdateColumns(map[string]any{
				"entry_count": gorm.Expr("entry_count + ?", countDelta),
				"sum_total":   gorm.Expr("sum_total + ?", sumDelta),
				"updated_at":  now,
			}).Error
		if err != nil {
			return fmt.Errorf("decrement aggregate totals: %w", err)
		}
		return nil
	}

	total := &models.AggregateTotal{
		Aggregate:  aggregate,
		Namespace:  namespace,
		EntryCount: countDelta,
		SumTotal:   sumDelta,
	}
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "aggregate"}, {Name: "namespace"}},
			DoUpdates: clause.Assignments(map[string]any{
				"entry_count": gorm.Expr("aggregate_totals.entry_count + ?", countDelta),
				"sum_total":   gorm.Expr("aggregate_totals.sum_total + ?", sumDelta),
				"updated_at":  now,
			}),
		}).
		Create(total).Error
	if err != nil {
		return fmt.Errorf("increment aggregate totals: %w", err)
	}
	return nil
}

func (m *Maintainer) entryCtx(ctx context.Context, e Entry) context.Context {
	return m.logg.WithFields(ctx, map[string]any{
		"aggregate": e.Aggregate.String(),
		"namespace": e.Namespace.String(),
		"record_id": e.RecordID.String(),
	})
}
