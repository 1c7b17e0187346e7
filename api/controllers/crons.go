package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/commitscribe-backend/api/responses"
	"github.com/angelmondragon/commitscribe-backend/api/validators"
	"github.com/angelmondragon/commitscribe-backend/internal/crons"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

type CronService interface {
	Create(ctx context.Context, userID uuid.UUID, input crons.CreateInput) (*models.Cron, error)
	Update(ctx context.Context, userID, id uuid.UUID, input crons.UpdateInput) (*models.Cron, error)
	SetStatus(ctx context.Context, userID, id uuid.UUID, status enums.CronStatus) (*models.Cron, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Cron, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Cron, error)
	History(ctx context.Context, userID, id uuid.UUID, limit int) ([]models.CronHistory, error)
}

// An empty repository_ids list means every repository the user owns.
type cronCreateRequest struct {
	Name          string      `json:"name" validate:"required,max=120"`
	Schedule      string      `json:"schedule" validate:"required,cron"`
	RepositoryIDs []uuid.UUID `json:"repository_ids"`
	Enabled       *bool       `json:"enabled"`
}

type cronUpdateRequest struct {
	Name          *string      `json:"name,omitempty" validate:"omitempty,max=120"`
	Schedule      *string      `json:"schedule,omitempty" validate:"omitempty,cron"`
	RepositoryIDs *[]uuid.UUID `json:"repository_ids,omitempty"`
	Status        *string      `json:"status,omitempty" validate:"omitempty,oneof=enabled disabled"`
}

type cronStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=enabled disabled"`
}

func (r cronUpdateRequest) toInput() (crons.UpdateInput, error) {
	input := crons.UpdateInput{
		Name:          r.Name,
		Schedule:      r.Schedule,
		RepositoryIDs: r.RepositoryIDs,
	}
	if r.Status != nil {
		status, err := enums.ParseCronStatus(*r.Status)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		input.Status = &status
	}
	return input, nil
}

func CreateCron(svc CronService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "cron service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		var req cronCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		enabled := true
		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		cron, err := svc.Create(r.Context(), userID, crons.CreateInput{
			Name:          req.Name,
			Schedule:      req.Schedule,
			RepositoryIDs: req.RepositoryIDs,
			Enabled:       enabled,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, crons.FromModel(*cron))
	}
}

func ListCrons(svc CronService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "cron service")
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
		items := make([]crons.CronDTO, 0, len(rows))
		for _, row := range rows {
			items = append(items, crons.FromModel(row))
		}
		responses.WriteSuccess(w, items)
	}
}

func GetCron(svc CronService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "cron service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "cronID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cron, err := svc.Get(r.Context(), userID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, crons.FromModel(*cron))
	}
}

// UpdateCron applies a partial update. Changing schedule or status reconciles
// the scheduler binding in the same transaction.
func UpdateCron(svc CronService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "cron service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "cronID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req cronUpdateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cron, err := svc.Update(r.Context(), userID, id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, crons.FromModel(*cron))
	}
}

func SetCronStatus(svc CronService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "cron service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "cronID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req cronStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cron, err := svc.SetStatus(r.Context(), userID, id, enums.CronStatus(req.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, crons.FromModel(*cron))
	}
}

func DeleteCron(svc CronService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "cron service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "cronID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), userID, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func CronHistory(svc CronService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "cron service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "cronID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.History(r.Context(), userID, id, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]crons.HistoryDTO, 0, len(rows))
		for _, row := range rows {
			items = append(items, crons.HistoryFromModel(row))
		}
		responses.WriteSuccess(w, items)
	}
}
