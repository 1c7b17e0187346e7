package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
)

type blogRequest struct {
	CommitIDs []string `json:"commit_ids" validate:"required,min=1,dive,uuid"`
	Title     string   `json:"title" validate:"max=10"`
}

func TestDecodeJSONBodyReportsFieldNames(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"commit_ids":[],"title":"this title is too long"}`))
	var dest blogRequest
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must contain at least 1 item(s)", details["commit_ids"])
	assert.Equal(t, "must be at most 10 characters", details["title"])
}

func TestDecodeJSONBodyRejectsEmptyAndTrailingData(t *testing.T) {
	var dest blogRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("  "))
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &dest), pkgerrors.CodeValidation))

	body := `{"commit_ids":["` + uuid.NewString() + `"]}{"commit_ids":[]}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &dest), pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyRejectsOversizedBody(t *testing.T) {
	huge := `{"commit_ids":["` + uuid.NewString() + `"],"title":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge))
	var dest blogRequest
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

type scheduleRequest struct {
	Schedule string `json:"schedule" validate:"required,cron"`
}

func TestCronTag(t *testing.T) {
	assert.NoError(t, Struct(scheduleRequest{Schedule: "0 9 * * 1-5"}))

	err := Struct(scheduleRequest{Schedule: "every tuesday"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a 5-field cron expression", details["schedule"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"commit_ids":["`+uuid.NewString()+`"],"extra":1}`))
	var dest blogRequest
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &dest), pkgerrors.CodeValidation))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500&bad=x", nil)
	_, err := ParseQueryInt(req, "limit", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseQueryInt(req, "bad", 25, 1, 100)
	assert.Error(t, err)
	v, err := ParseQueryInt(req, "missing", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("commitID", id.String())
	rctx.URLParams.Add("broken", "nope")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := ParseUUIDParam(req, "commitID")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(req, "broken")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseUUIDParam(req, "absent")
	assert.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	assert.Equal(t, "abcdef", SanitizeString("abcdef", 0))
	assert.Equal(t, "héllo", SanitizeString("héllo wörld", 5))
	assert.Equal(t, "line one\nline two", SanitizeString("line one\x00\nline two\x1b", 0))
}
