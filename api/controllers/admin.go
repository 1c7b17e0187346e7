package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/commitscribe-backend/api/responses"
	"github.com/angelmondragon/commitscribe-backend/api/validators"
	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/internal/events"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/pagination"
)

type AggregateRepairer interface {
	Audit(ctx context.Context, namespace uuid.UUID) (*aggregates.AuditReport, error)
	Backfill(ctx context.Context, namespace uuid.UUID) (map[enums.Aggregate]aggregates.Totals, error)
}

type EventReader interface {
	List(ctx context.Context, params events.ListParams) (*events.ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.WebhookEvent, error)
}

// AdminAuditAggregates compares a user's cached totals with the base tables.
func AdminAuditAggregates(svc AggregateRepairer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "aggregate service")
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Audit(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "audit aggregates"))
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"drifted": report.Drifted(),
			"report":  report,
		})
	}
}

// AdminBackfillAggregates rebuilds a user's entries from the base tables.
func AdminBackfillAggregates(svc AggregateRepairer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "aggregate service")
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		totals, err := svc.Backfill(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "backfill aggregates"))
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(r.Context(), "namespace", userID.String()), "aggregates backfilled by admin")
		}
		responses.WriteSuccess(w, totals)
	}
}

// AdminListEvents pages the webhook event store. ?platform and ?status filter.
func AdminListEvents(svc EventReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "event service")
			return
		}
		query := r.URL.Query()
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := events.ListParams{Limit: limit, Cursor: query.Get("cursor")}
		if raw := query.Get("platform"); raw != "" {
			platform, err := enums.ParsePlatform(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid platform"))
				return
			}
			params.Platform = platform
		}
		if raw := query.Get("status"); raw != "" {
			status, err := enums.ParseEventStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			params.Status = status
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]events.EventDTO, 0, len(result.Items))
		for _, item := range result.Items {
			items = append(items, events.FromModel(item))
		}
		responses.WriteSuccess(w, map[string]any{"items": items, "cursor": result.Cursor})
	}
}

func AdminGetEvent(svc EventReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "event service")
			return
		}
		id, err := validators.ParseUUIDParam(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, events.DetailFromModel(*event))
	}
}
