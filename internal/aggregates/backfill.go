package aggregates

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const backfillBatchSize = 500

type baseRow struct {
	ID        uuid.UUID
	CreatedAt time.Time
	SumValue  int64
}

// Drift compares one aggregate against its base table.
type Drift struct {
	Aggregate  enums.Aggregate `json:"aggregate"`
	BaseCount  int64           `json:"base_count"`
	BaseSum    int64           `json:"base_sum"`
	EntryCount int64           `json:"entry_count"`
	TotalCount int64           `json:"total_count"`
	TotalSum   int64           `json:"total_sum"`
}

func (d Drift) Drifted() bool {
	return d.BaseCount != d.EntryCount || d.BaseCount != d.TotalCount || d.BaseSum != d.TotalSum
}

type AuditReport struct {
	Namespace uuid.UUID `json:"namespace"`
	Items     []Drift   `json:"items"`
}

func (r AuditReport) Drifted() bool {
	for _, item := range r.Items {
		if item.Drifted() {
			return true
		}
	}
	return false
}

// Backfill rebuilds every aggregate for one namespace from the base tables. It runs
// in a single transaction, touches only that namespace and can be repeated.
func (m *Maintainer) Backfill(ctx context.Context, namespace uuid.UUID) (map[enums.Aggregate]Totals, error) {
	if namespace == uuid.Nil {
		return nil, fmt.Errorf("namespace required")
	}
	rebuilt := make(map[enums.Aggregate]Totals, len(definitions))
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)
		if err := tx.Where("namespace = ?", namespace).Delete(&models.AggregateEntry{}).Error; err != nil {
			return fmt.Errorf("clear aggregate entries: %w", err)
		}
		if err := tx.Where("namespace = ?", namespace).Delete(&models.AggregateTotal{}).Error; err != nil {
			return fmt.Errorf("clear aggregate totals: %w", err)
		}

		for _, def := range definitions {
			rows, err := loadBaseRows(tx, def, namespace)
			if err != nil {
				return err
			}
			totals := Totals{}
			entries := make([]models.AggregateEntry, 0, len(rows))
			for _, row := range rows {
				entries = append(entries, models.AggregateEntry{
					Aggregate: def.aggregate,
					Namespace: namespace,
					RecordID:  row.ID,
					OrderKey:  row.CreatedAt,
					SumValue:  row.SumValue,
				})
				totals.Count++
				totals.Sum += row.SumValue
			}
			if len(entries) > 0 {
				if err := tx.CreateInBatches(&entries, backfillBatchSize).Error; err != nil {
					return fmt.Errorf("insert %s entries: %w", def.aggregate, err)
				}
				total := &models.AggregateTotal{
					Aggregate:  def.aggregate,
					Namespace:  namespace,
					EntryCount: totals.Count,
					SumTotal:   totals.Sum,
				}
				if err := tx.Create(total).Error; err != nil {
					return fmt.Errorf("insert %s totals: %w", def.aggregate, err)
				}
			}
			rebuilt[def.aggregate] = totals
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"namespace": namespace.String(),
		"commits":   rebuilt[enums.AggregateCommits].Count,
	}), "aggregates backfilled")
	return rebuilt, nil
}

// Audit reports per-aggregate drift between base tables, entries and totals.
func (m *Maintainer) Audit(ctx context.Context, namespace uuid.UUID) (*AuditReport, error) {
	report := &AuditReport{Namespace: namespace}
	conn := m.db.WithContext(ctx)
	for _, def := range definitions {
		var base struct {
			Count int64
			Total int64
		}
		query := fmt.Sprintf("SELECT COUNT(*) AS count, COALESCE(SUM(%s), 0) AS total FROM %s WHERE user_id = ?", def.sumExpr, def.table)
		if err := conn.Raw(query, namespace).Scan(&base).Error; err != nil {
			return nil, fmt.Errorf("audit %s base: %w", def.aggregate, err)
		}

		var entryCount int64
		if err := conn.Model(&models.AggregateEntry{}).
			Where("aggregate = ? AND namespace = ?", def.aggregate, namespace).
			Count(&entryCount).Error; err != nil {
			return nil, fmt.Errorf("audit %s entries: %w", def.aggregate, err)
		}

		totals, err := m.Totals(ctx, def.aggregate, namespace)
		if err != nil {
			return nil, err
		}
		report.Items = append(report.Items, Drift{
			Aggregate:  def.aggregate,
			BaseCount:  base.Count,
			BaseSum:    base.Total,
			EntryCount: entryCount,
			TotalCount: totals.Count,
			TotalSum:   totals.Sum,
		})
	}
	return report, nil
}

// Namespaces pages through user ids in id order, for sweeps over every namespace.
func (m *Maintainer) Namespaces(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uuid.UUID
	query := m.db.WithContext(ctx).Model(&models.User{}).Order("id ASC").Limit(limit)
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	return ids, nil
}

func loadBaseRows(tx *gorm.DB, def definition, namespace uuid.UUID) ([]baseRow, error) {
	var rows []baseRow
	query := fmt.Sprintf("SELECT id, created_at, %s AS sum_value FROM %s WHERE user_id = ?", def.sumExpr, def.table)
	if err := tx.Raw(query, namespace).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load %s base rows: %w", def.aggregate, err)
	}
	return rows, nil
}
