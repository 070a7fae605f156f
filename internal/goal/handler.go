package goal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/auth"
	"github.com/saulo-duarte/chronos-goals/internal/config"
	"github.com/saulo-duarte/chronos-goals/internal/metric"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := config.WithContext(r.Context())

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var dto CreateGoalDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		log.WithError(err).Warn("Invalid request body")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateGoal(r.Context(), dto, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	config.JSON(w, http.StatusCreated, map[string]uuid.UUID{"id": id})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := h.service.Query(r.Context(), f, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	config.JSON(w, http.StatusOK, result)
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.service.GetMetrics(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	config.JSON(w, http.StatusOK, result)
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.service.GetAnalytics(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	config.JSON(w, http.StatusOK, result)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := goalID(w, r)
	if !ok {
		return
	}
	goal, err := h.service.GetGoal(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	config.JSON(w, http.StatusOK, goal)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := config.WithContext(r.Context())

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := goalID(w, r)
	if !ok {
		return
	}

	var dto UpdateGoalDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		log.WithError(err).Warn("Invalid request body")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.service.UpdateGoal(r.Context(), id, dto, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	config.JSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := goalID(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteGoal(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !deleted {
		config.JSON(w, http.StatusOK, map[string]bool{"deleted": false})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	log := config.WithContext(r.Context())

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := goalID(w, r)
	if !ok {
		return
	}

	var dto ManualAdjustDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		log.WithError(err).Warn("Invalid request body")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateStruct(dto); err != nil {
		writeError(w, r, err)
		return
	}

	goal, err := h.service.ManualAdjustProgress(r.Context(), id, dto.Value, dto.Reason, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	config.JSON(w, http.StatusOK, goal)
}

func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := goalID(w, r)
	if !ok {
		return
	}

	goal, err := h.service.RecalculateProgress(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	config.JSON(w, http.StatusOK, goal)
}

func (h *Handler) Forecast(w http.ResponseWriter, r *http.Request) {
	id, ok := goalID(w, r)
	if !ok {
		return
	}
	f, err := h.service.GetForecast(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	config.JSON(w, http.StatusOK, f)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := goalID(w, r)
	if !ok {
		return
	}
	from, err := timeParam(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := timeParam(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := h.service.GetProgressHistory(r.Context(), id, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	config.JSON(w, http.StatusOK, entries)
}

func (h *Handler) Hierarchy(w http.ResponseWriter, r *http.Request) {
	id, ok := goalID(w, r)
	if !ok {
		return
	}
	result, err := h.service.GetHierarchy(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	config.JSON(w, http.StatusOK, result)
}

func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	id, ok := goalID(w, r)
	if !ok {
		return
	}
	children, err := h.service.GetChildren(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	config.JSON(w, http.StatusOK, children)
}

func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	log := config.WithContext(r.Context())

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := goalID(w, r)
	if !ok {
		return
	}

	var dto LinkParentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		log.WithError(err).Warn("Invalid request body")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateStruct(dto); err != nil {
		writeError(w, r, err)
		return
	}

	goal, err := h.service.LinkToParent(r.Context(), id, dto.ParentGoalID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	config.JSON(w, http.StatusOK, goal)
}

func (h *Handler) Unlink(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := goalID(w, r)
	if !ok {
		return
	}

	goal, err := h.service.UnlinkFromParent(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	config.JSON(w, http.StatusOK, goal)
}

func currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims, err := auth.GetUserClaimsFromContext(r.Context())
	if err != nil {
		config.WithContext(r.Context()).Warn("User not authenticated")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}

func goalID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func timeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, invalid(name, "must be an RFC3339 timestamp")
	}
	return &t, nil
}

func uuidParam(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, invalid(name, "must be a uuid")
	}
	return &id, nil
}

func filterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var (
		f   Filter
		err error
	)

	if f.OwnerID, err = uuidParam(r, "owner_id"); err != nil {
		return f, err
	}
	if f.TeamID, err = uuidParam(r, "team_id"); err != nil {
		return f, err
	}
	if f.ParentGoalID, err = uuidParam(r, "parent_goal_id"); err != nil {
		return f, err
	}
	if v := q.Get("status"); v != "" {
		status := GoalStatus(v)
		if !status.IsValid() {
			return f, invalid("status", "is not a goal status")
		}
		f.Status = &status
	}
	if v := q.Get("metric_type"); v != "" {
		mt := metric.Type(v)
		if !mt.IsValid() {
			return f, invalid("metric_type", "is not supported")
		}
		f.MetricType = &mt
	}
	if v := q.Get("tracking_mode"); v != "" {
		mode := TrackingMode(v)
		if !mode.IsValid() {
			return f, invalid("tracking_mode", "must be AUTO or MANUAL")
		}
		f.TrackingMode = &mode
	}
	f.RootsOnly = q.Get("roots_only") == "true"
	f.Search = q.Get("search")
	return f, nil
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := config.WithContext(r.Context()).WithError(err)

	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
		log.Error("Goal request failed")
		http.Error(w, "internal server error", status)
		return
	}
	log.Warn("Goal request rejected")
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrCycle), errors.Is(err, ErrInvalidOperation):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case metric.IsTransient(err):
		return http.StatusServiceUnavailable
	case metric.IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
