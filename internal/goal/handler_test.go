package goal

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/auth"
	"github.com/saulo-duarte/chronos-goals/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	routes := Routes(NewHandler(f.svc))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := r.Header.Get("X-Test-User"); userID != "" {
			r = r.WithContext(auth.WithClaims(r.Context(), &auth.Claims{UserID: userID}))
		}
		routes.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, user uuid.UUID, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if user != uuid.Nil {
		req.Header.Set("X-Test-User", user.String())
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandler_CreateAndGet(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)

	resp := doJSON(t, http.MethodPost, srv.URL+"/", f.user, f.createDTO())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]uuid.UUID
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	id := created["id"]
	require.NotEqual(t, uuid.Nil, id)

	resp = doJSON(t, http.MethodGet, srv.URL+"/"+id.String(), f.user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var g Goal
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
	assert.Equal(t, id, g.ID)
	assert.Equal(t, TrackingAuto, g.TrackingMode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/?page=1&page_size=5", f.user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page PagedResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, int64(1), page.Total)
}

func TestHandler_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)
	id := f.create()
	manual := f.create(withMode(TrackingManual))

	resp := doJSON(t, http.MethodGet, srv.URL+"/"+uuid.NewString(), f.user, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/not-a-uuid", f.user, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bad := f.createDTO()
	bad.TargetValue = dec(0)
	resp = doJSON(t, http.MethodPost, srv.URL+"/", f.user, bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/"+manual.String()+"/recalculate", f.user, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPut, srv.URL+"/"+id.String()+"/parent", f.user, LinkParentDTO{ParentGoalID: id})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/"+id.String()+"/adjust", uuid.New(), ManualAdjustDTO{Value: dec(5), Reason: "not mine"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/"+id.String()+"/adjust", f.user, ManualAdjustDTO{Value: dec(5)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "reason is required")

	resp = doJSON(t, http.MethodPost, srv.URL+"/", uuid.Nil, f.createDTO())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	f.provider.SetError(metric.NewTransientError(errors.New("timeout"), 504))
	resp = doJSON(t, http.MethodPost, srv.URL+"/"+id.String()+"/recalculate", f.user, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	f.provider.SetError(metric.NewPermanentError(errors.New("bad scope"), 422))
	resp = doJSON(t, http.MethodPost, srv.URL+"/"+id.String()+"/recalculate", f.user, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/?status=SLEEPING", f.user, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_AdjustHistoryAndForecast(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)
	id := f.create()

	resp := doJSON(t, http.MethodPost, srv.URL+"/"+id.String()+"/adjust", f.user, ManualAdjustDTO{Value: dec(45), Reason: "pipeline review"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var g Goal
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
	assert.True(t, g.ProgressPercent.Equal(dec(45)))

	resp = doJSON(t, http.MethodGet, srv.URL+"/"+id.String()+"/history", f.user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "MANUAL_ADJUSTMENT", entries[0]["source"])

	resp = doJSON(t, http.MethodGet, srv.URL+"/"+id.String()+"/forecast", f.user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))
	assert.Equal(t, "LOW", fc["confidence"])
	assert.Nil(t, fc["projected_completion_date"])
}

func TestHandler_ParentRoutes(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)
	parent := f.create(withTarget(1000))
	child := f.create()

	resp := doJSON(t, http.MethodPut, srv.URL+"/"+child.String()+"/parent", f.user, LinkParentDTO{ParentGoalID: parent})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/"+parent.String()+"/children", f.user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var children []Goal
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&children))
	require.Len(t, children, 1)
	assert.Equal(t, child, children[0].ID)

	resp = doJSON(t, http.MethodGet, srv.URL+"/"+child.String()+"/hierarchy", f.user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/"+child.String()+"/parent", f.user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/"+child.String(), f.user, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
