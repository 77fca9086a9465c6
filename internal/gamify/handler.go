package gamify

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/glimra/backend/internal/auth"
	"github.com/glimra/backend/internal/badges"
	"github.com/glimra/backend/internal/challenges"
	"github.com/glimra/backend/internal/events"
	"github.com/glimra/backend/internal/leaderboard"
	"github.com/glimra/backend/internal/levels"
	"github.com/glimra/backend/internal/models"
	"github.com/glimra/backend/internal/points"
	"github.com/glimra/backend/internal/repository"
)

// Handler serves the gamification API. Responses are snake_case JSON.
type Handler struct {
	authSvc      *auth.Service
	pointsSvc    *points.Service
	badgeSvc     *badges.Service
	challengeSvc *challenges.Service
	boardSvc     *leaderboard.Service
	catalog      *levels.Catalog
	processor    *events.Processor
	validator    *events.Validator
	log          *slog.Logger
}

func NewHandler(
	authSvc *auth.Service,
	pointsSvc *points.Service,
	badgeSvc *badges.Service,
	challengeSvc *challenges.Service,
	boardSvc *leaderboard.Service,
	catalog *levels.Catalog,
	processor *events.Processor,
	validator *events.Validator,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		authSvc:      authSvc,
		pointsSvc:    pointsSvc,
		badgeSvc:     badgeSvc,
		challengeSvc: challengeSvc,
		boardSvc:     boardSvc,
		catalog:      catalog,
		processor:    processor,
		validator:    validator,
		log:          log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) identityFromRequest(r *http.Request) (*auth.Identity, error) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return nil, errors.New("missing bearer token")
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return nil, errors.New("empty token")
	}
	return h.authSvc.ValidateToken(token)
}

// GET /api/v1/gamification/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := h.identityFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	bal, err := h.pointsSvc.GetBalance(r.Context(), id.UserID)
	if errors.Is(err, points.ErrAccountNotFound) {
		// No activity yet reads as the zero state, not an error.
		bal, err = h.catalog.Progress(r.Context(), 0, id.UserType)
	}
	if err != nil {
		h.log.Error("get balance failed", "user_id", id.UserID, "error", err)
		http.Error(w, "get balance failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// GET /api/v1/gamification/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := h.identityFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	f := repository.HistoryFilter{
		Action: r.URL.Query().Get("action"),
		Limit:  intQuery(r, "limit", 50),
		Offset: intQuery(r, "offset", 0),
	}
	list, err := h.pointsSvc.GetHistory(r.Context(), id.UserID, f)
	if err != nil {
		h.log.Error("get history failed", "user_id", id.UserID, "error", err)
		http.Error(w, "get history failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.PointTransaction{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /api/v1/gamification/badges
func (h *Handler) ListBadges(w http.ResponseWriter, r *http.Request) {
	id, err := h.identityFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.badgeSvc.ListEarned(r.Context(), id.UserID)
	if err != nil {
		h.log.Error("list badges failed", "user_id", id.UserID, "error", err)
		http.Error(w, "list badges failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.EarnedBadge{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) boardQuery(r *http.Request, id *auth.Identity) (leaderboard.Query, error) {
	q := leaderboard.Query{
		Metric:    r.URL.Query().Get("metric"),
		Timeframe: r.URL.Query().Get("timeframe"),
		UserType:  r.URL.Query().Get("user_type"),
		TenantID:  id.TenantID,
		Limit:     intQuery(r, "limit", 20),
		Offset:    intQuery(r, "offset", 0),
	}
	if q.Metric == "" {
		q.Metric = models.MetricPoints
	}
	if q.Timeframe == "" {
		q.Timeframe = models.TimeframeAllTime
	}
	if q.UserType == "" {
		q.UserType = id.UserType
	}
	if !validMetric(q.Metric) || !validTimeframe(q.Timeframe) || !models.ValidUserType(q.UserType) {
		return q, errors.New("invalid leaderboard parameters")
	}
	return q, nil
}

// GET /api/v1/leaderboard
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := h.identityFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q, err := h.boardQuery(r, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.boardSvc.GetLeaderboard(r.Context(), q)
	if err != nil {
		h.log.Error("get leaderboard failed", "metric", q.Metric, "timeframe", q.Timeframe, "error", err)
		http.Error(w, "get leaderboard failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/v1/leaderboard/rank
func (h *Handler) GetUserRank(w http.ResponseWriter, r *http.Request) {
	id, err := h.identityFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q, err := h.boardQuery(r, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rank, err := h.boardSvc.GetUserRank(r.Context(), id.UserID, q)
	if err != nil {
		h.log.Error("get rank failed", "user_id", id.UserID, "error", err)
		http.Error(w, "get rank failed", http.StatusInternalServerError)
		return
	}
	if rank == nil {
		http.Error(w, "no qualifying activity", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rank)
}

// GET /api/v1/challenges
func (h *Handler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	id, err := h.identityFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.challengeSvc.ListActive(r.Context(), id.UserType, id.TenantID)
	if err != nil {
		h.log.Error("list challenges failed", "error", err)
		http.Error(w, "list challenges failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Challenge{}
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /api/v1/challenges/{id}/join
func (h *Handler) JoinChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := h.identityFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	challengeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid challenge id", http.StatusBadRequest)
		return
	}
	uc, err := h.challengeSvc.JoinChallenge(r.Context(), id.UserID, challengeID)
	switch {
	case errors.Is(err, challenges.ErrChallengeNotFound):
		http.Error(w, "challenge not found", http.StatusNotFound)
	case errors.Is(err, challenges.ErrChallengeNotActive):
		http.Error(w, "challenge not active", http.StatusConflict)
	case errors.Is(err, challenges.ErrAlreadyJoined):
		http.Error(w, "already joined", http.StatusConflict)
	case err != nil:
		h.log.Error("join challenge failed", "challenge_id", challengeID, "error", err)
		http.Error(w, "join challenge failed", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusCreated, uc)
	}
}

// POST /api/v1/challenges/{id}/progress
func (h *Handler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	id, err := h.identityFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	challengeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid challenge id", http.StatusBadRequest)
		return
	}
	var body struct {
		Progress int `json:"progress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	res, err := h.challengeSvc.UpdateProgress(r.Context(), id.UserID, challengeID, body.Progress)
	switch {
	case errors.Is(err, challenges.ErrChallengeNotFound):
		http.Error(w, "challenge not joined", http.StatusNotFound)
	case err != nil:
		h.log.Error("update progress failed", "challenge_id", challengeID, "error", err)
		http.Error(w, "update progress failed", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /api/v1/challenges/{id}/stats
func (h *Handler) ChallengeStats(w http.ResponseWriter, r *http.Request) {
	if _, err := h.identityFromRequest(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	challengeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid challenge id", http.StatusBadRequest)
		return
	}
	stats, err := h.challengeSvc.GetChallengeStats(r.Context(), challengeID)
	if err != nil {
		h.log.Error("challenge stats failed", "challenge_id", challengeID, "error", err)
		http.Error(w, "challenge stats failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// POST /api/v1/events
//
// Internal endpoint for domain subsystems. Authenticated with the shared
// service key; payloads are schema-validated per kind before dispatch.
// A failure here must never abort the caller's domain flow; producers treat
// non-2xx as advisory.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.authSvc.VerifyServiceKey(r.Header.Get("X-Service-Key")); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	var ev events.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}
	if err := h.validator.Validate(ev.Kind, raw); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.processor.ProcessEvent(r.Context(), ev); err != nil {
		if errors.Is(err, events.ErrUnknownKind) {
			http.Error(w, "unknown event kind", http.StatusBadRequest)
			return
		}
		h.log.Error("process event failed", "kind", ev.Kind, "user_id", ev.UserID, "error", err)
		http.Error(w, "process event failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// POST /api/v1/gamification/deduct
//
// Internal endpoint for redemption flows (reward shops, fee offsets). The
// calling subsystem owns what the points buy; the engine only moves the
// balance.
func (h *Handler) DeductPoints(w http.ResponseWriter, r *http.Request) {
	if err := h.authSvc.VerifyServiceKey(r.Header.Get("X-Service-Key")); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var body struct {
		UserID   uuid.UUID       `json:"user_id"`
		Points   int             `json:"points"`
		Reason   string          `json:"reason"`
		Metadata json.RawMessage `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if body.Reason == "" {
		http.Error(w, "reason is required", http.StatusBadRequest)
		return
	}
	newTotal, err := h.pointsSvc.DeductPoints(r.Context(), body.UserID, body.Points, body.Reason, body.Metadata)
	switch {
	case errors.Is(err, points.ErrInvalidPointValue):
		http.Error(w, "points must be positive", http.StatusBadRequest)
	case errors.Is(err, points.ErrInsufficientBalance):
		http.Error(w, "insufficient balance", http.StatusConflict)
	case err != nil:
		h.log.Error("deduct points failed", "user_id", body.UserID, "error", err)
		http.Error(w, "deduct points failed", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]int{"new_total": newTotal})
	}
}

func intQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func validMetric(m string) bool {
	for _, v := range models.Metrics {
		if v == m {
			return true
		}
	}
	return false
}

func validTimeframe(t string) bool {
	for _, v := range models.Timeframes {
		if v == t {
			return true
		}
	}
	return false
}
