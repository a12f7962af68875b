package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/kennygrant/sanitize"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/waitline/queuecoord/internal/channel/webpush"
	cerrors "github.com/waitline/queuecoord/internal/errors"
	"github.com/waitline/queuecoord/internal/queue"
	"github.com/waitline/queuecoord/internal/ratelimit"
)

type handlers struct {
	deps Dependencies
	log  zerolog.Logger
}

func newHandlers(deps Dependencies, log zerolog.Logger) *handlers {
	return &handlers{deps: deps, log: log}
}

func registerRoutes(api *mux.Router, h *handlers, deps Dependencies) {
	authed := api.NewRoute().Subrouter()
	authed.Use(authMiddleware(deps.Verifier))
	authed.Use(generalRateLimitMiddleware(deps.Limits))

	authed.HandleFunc("/queues", h.createQueue).Methods(http.MethodPost)
	authed.HandleFunc("/queues/{id}", h.cancelQueue).Methods(http.MethodDelete)
	authed.HandleFunc("/queues/{id}/notify", h.notifyQueue).Methods(http.MethodPost)
	authed.HandleFunc("/queues/{id}/checkin", h.checkIn).Methods(http.MethodPost)
	authed.HandleFunc("/queues/{id}/verify-arrival", h.verifyArrival).Methods(http.MethodPost)
	authed.HandleFunc("/queues/{id}/status", h.updateStatus).Methods(http.MethodPut)
	authed.HandleFunc("/venues/{id}/pending-verifications", h.pendingVerifications).Methods(http.MethodGet)
	authed.HandleFunc("/users/{id}/reputation", h.getReputation).Methods(http.MethodGet)
	authed.HandleFunc("/users/{id}/checkin-history", h.getCheckInHistory).Methods(http.MethodGet)
	authed.HandleFunc("/push-subscriptions", h.createPushSubscription).Methods(http.MethodPost)
	authed.HandleFunc("/ws", h.websocket).Methods(http.MethodGet)

	api.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
}

func generalRateLimitMiddleware(limits *ratelimit.Limits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, cerrors.New(cerrors.KindUnauthorized, "missing principal"))
				return
			}
			if limits != nil {
				if err := limits.GeneralAPI(r.Context(), principal.UserID); err != nil {
					writeError(w, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return cerrors.New(cerrors.KindInvalidInput, "request body is required")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return cerrors.Wrap(cerrors.KindInvalidInput, "malformed JSON body", err)
	}
	return nil
}

// stripTags removes any HTML markup from free-text request fields
// (notify messages, verification/status notes) per §6's "string inputs
// stripped of HTML tags" requirement.
func stripTags(s string) string {
	return sanitize.HTML(s)
}

// --- queue lifecycle ---

type createQueueRequest struct {
	VenueID       string   `json:"venueId"`
	ServiceIDs    []string `json:"serviceIds"`
	TotalPrice    string   `json:"totalPrice"`
	AppliedOffers []string `json:"appliedOffers"`
}

func (h *handlers) createQueue(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req createQueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.VenueID == "" {
		writeError(w, cerrors.New(cerrors.KindInvalidVenueId, "venueId is required"))
		return
	}
	price, err := decimal.NewFromString(req.TotalPrice)
	if err != nil {
		writeError(w, cerrors.New(cerrors.KindInvalidInput, "totalPrice must be numeric"))
		return
	}
	entry, err := h.deps.Service.Enrol(r.Context(), principal.UserID, req.VenueID, req.ServiceIDs, price, req.AppliedOffers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryResponse(entry))
}

func (h *handlers) cancelQueue(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := mux.Vars(r)["id"]
	entry, err := h.deps.Service.CancelByCustomer(r.Context(), id, queue.Actor{UserID: principal.UserID, Role: principal.Role})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse(entry))
}

type notifyQueueRequest struct {
	EstimatedMinutes int    `json:"estimatedMinutes"`
	Message          string `json:"message"`
}

var validWindowMinutes = map[int]bool{5: true, 10: true, 15: true, 20: true}

func (h *handlers) notifyQueue(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := mux.Vars(r)["id"]
	var req notifyQueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !validWindowMinutes[req.EstimatedMinutes] {
		writeError(w, cerrors.New(cerrors.KindInvalidInput, "estimatedMinutes must be one of 5, 10, 15, 20"))
		return
	}
	req.Message = stripTags(req.Message)
	if h.deps.Limits != nil {
		if err := h.deps.Limits.Notification(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
	}
	entry, err := h.deps.Service.Notify(r.Context(), id, principal.UserID, req.EstimatedMinutes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse(entry))
}

type checkInRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
}

func (h *handlers) checkIn(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := mux.Vars(r)["id"]
	var req checkInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if h.deps.Limits != nil {
		if err := h.deps.Limits.CheckIn(r.Context(), principal.UserID, id); err != nil {
			writeError(w, err)
			return
		}
	}

	var loc *queue.Location
	if req.Latitude != nil && req.Longitude != nil {
		loc = &queue.Location{Latitude: *req.Latitude, Longitude: *req.Longitude, Accuracy: req.Accuracy}
	}

	result, err := h.deps.Service.CheckIn(r.Context(), id, principal.UserID, loc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entry":          entryResponse(result.Entry),
		"verified":       result.Decision.Verified,
		"autoApproved":   result.Decision.AutoApproved,
		"requiresReview": result.Decision.RequiresReview,
		"distanceMeters": result.Decision.DistanceMeters,
		"reason":         result.Decision.Reason,
		"transitionedTo": string(result.TransitionedTo),
	})
}

type verifyArrivalRequest struct {
	Confirmed bool   `json:"confirmed"`
	Notes     string `json:"notes"`
}

func (h *handlers) verifyArrival(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := mux.Vars(r)["id"]
	var req verifyArrivalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Notes = stripTags(req.Notes)
	entry, err := h.deps.Service.VerifyArrival(r.Context(), id, principal.UserID, req.Confirmed, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse(entry))
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := mux.Vars(r)["id"]
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Notes = stripTags(req.Notes)
	entry, err := h.deps.Service.UpdateStatus(r.Context(), id, queue.Status(req.Status),
		queue.Actor{UserID: principal.UserID, Role: principal.Role}, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse(entry))
}

func (h *handlers) pendingVerifications(w http.ResponseWriter, r *http.Request) {
	venueID := mux.Vars(r)["id"]
	entries, err := h.deps.Service.PendingVerificationsForVenue(r.Context(), venueID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": out})
}

func (h *handlers) getReputation(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	rec, err := h.deps.Reputation.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":             rec.UserID,
		"totalCheckIns":      rec.TotalCheckIns,
		"successfulCheckIns": rec.SuccessfulCheckIns,
		"falseCheckIns":      rec.FalseCheckIns,
		"noShows":            rec.NoShows,
		"completedServices":  rec.CompletedServices,
		"score":              rec.Score,
		"tier":               string(rec.Tier),
		"lastCheckInAt":      rec.LastCheckInAt,
		"lastNoShowAt":       rec.LastNoShowAt,
		"createdAt":          rec.CreatedAt,
		"updatedAt":          rec.UpdatedAt,
	})
}

func (h *handlers) getCheckInHistory(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	if h.deps.History == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"checkIns": []interface{}{}})
		return
	}
	logs, err := h.deps.History.CheckInsForUserSince(r.Context(), userID, time.Now().Add(-30*24*time.Hour), 100)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"checkIns": logs})
}

type createPushSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

func (h *handlers) createPushSubscription(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req createPushSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, cerrors.New(cerrors.KindMissingRequiredField, "endpoint, p256dh and auth are required"))
		return
	}
	if h.deps.PushPutter == nil {
		writeError(w, cerrors.New(cerrors.KindServiceUnavailable, "push subscriptions are not configured"))
		return
	}
	sub := webpush.Subscription{ID: uuid.NewString(), UserID: principal.UserID, Endpoint: req.Endpoint, P256dh: req.P256dh, Auth: req.Auth}
	if err := h.deps.PushPutter.Put(r.Context(), sub); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": sub.ID})
}

func (h *handlers) websocket(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		writeError(w, cerrors.New(cerrors.KindServiceUnavailable, "realtime is not configured"))
		return
	}
	serveWebsocket(h.deps.Hub, h.log, w, r)
}

// healthz reports Postgres connectivity, Redis connectivity when
// configured, and every notification channel's circuit breaker state,
// returning 503 the moment a required dependency is unreachable.
func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	dbStatus := "unconfigured"
	if h.deps.DB != nil {
		if err := h.deps.DB.PingContext(r.Context()); err != nil {
			dbStatus = "unreachable"
			status, code = "degraded", http.StatusServiceUnavailable
		} else {
			dbStatus = "ok"
		}
	}

	redisStatus := "unconfigured"
	if h.deps.Redis != nil {
		if err := h.deps.Redis.Ping(r.Context()); err != nil {
			redisStatus = "unreachable"
			status, code = "degraded", http.StatusServiceUnavailable
		} else {
			redisStatus = "ok"
		}
	}

	var breakers map[string]string
	if h.deps.Breakers != nil {
		breakers = h.deps.Breakers.States()
	}

	writeJSON(w, code, map[string]interface{}{
		"status":   status,
		"time":     time.Now().UTC(),
		"postgres": dbStatus,
		"redis":    redisStatus,
		"breakers": breakers,
	})
}

func entryResponse(e *queue.Entry) map[string]interface{} {
	if e == nil {
		return nil
	}
	return map[string]interface{}{
		"id":                        e.ID,
		"venueId":                   e.VenueID,
		"userId":                    e.UserID,
		"serviceIds":                e.ServiceIDs,
		"totalPrice":                e.TotalPrice.String(),
		"appliedOfferIds":           e.AppliedOfferIDs,
		"position":                  e.Position,
		"estimatedWaitMinutes":      e.EstimatedWaitMinutes,
		"createdAt":                 e.CreatedAt,
		"notifiedAt":                e.NotifiedAt,
		"notificationWindowMinutes": e.NotificationWindowMinutes,
		"checkInAttemptedAt":        e.CheckInAttemptedAt,
		"checkInDistanceMeters":     e.CheckInDistanceMeters,
		"verifiedAt":                e.VerifiedAt,
		"verificationMethod":        e.VerificationMethod,
		"verifiedByAdminId":         e.VerifiedByAdminID,
		"serviceStartedAt":          e.ServiceStartedAt,
		"serviceCompletedAt":        e.ServiceCompletedAt,
		"noShowMarkedAt":            e.NoShowMarkedAt,
		"noShowReason":              e.NoShowReason,
		"status":                    string(e.Status),
	}
}
