package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/commitscribe-backend/api/responses"
	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/internal/repositories"
	"github.com/angelmondragon/commitscribe-backend/internal/users"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

type UserReader interface {
	ByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.User, error)
}

type RepositoryLister interface {
	List(ctx context.Context, userID uuid.UUID) ([]models.Repository, error)
}

type StatsReader interface {
	Snapshot(ctx context.Context, namespace uuid.UUID) (map[enums.Aggregate]aggregates.Totals, error)
	CountBetween(ctx context.Context, aggregate enums.Aggregate, namespace uuid.UUID, from, to time.Time) (int64, error)
}

type statsResponse struct {
	Totals            map[enums.Aggregate]aggregates.Totals `json:"totals"`
	CommitsLastWeek   int64                                 `json:"commits_last_week"`
	SummarizedPercent float64                               `json:"summarized_percent"`
}

func Me(svc UserReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "user service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		user, err := svc.ByID(r.Context(), nil, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, users.FromModel(user))
	}
}

func ListRepositories(svc RepositoryLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "repository service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		rows, err := svc.List(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]repositories.RepositoryDTO, 0, len(rows))
		for _, row := range rows {
			items = append(items, repositories.FromModel(row))
		}
		responses.WriteSuccess(w, items)
	}
}

// Stats reads the caller's cached aggregate totals; nothing here scans base
// tables.
func Stats(svc StatsReader, now func() time.Time, logg *logger.Logger) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "aggregate service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}

		totals, err := svc.Snapshot(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stats"))
			return
		}
		to := now().UTC()
		lastWeek, err := svc.CountBetween(r.Context(), enums.AggregateCommits, userID, to.AddDate(0, 0, -7), to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stats"))
			return
		}

		resp := statsResponse{Totals: totals, CommitsLastWeek: lastWeek}
		if c := totals[enums.AggregateCommits]; c.Count > 0 {
			resp.SummarizedPercent = float64(c.Sum) * 100 / float64(c.Count)
		}
		responses.WriteSuccess(w, resp)
	}
}
