// File: internal/api/handlers.go
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/advisor"
	"github.com/codeshield-25/codeshield-web/internal/orchestrator"
	"github.com/codeshield-25/codeshield-web/internal/reporting"
	"github.com/codeshield-25/codeshield-web/internal/repository"
	"github.com/codeshield-25/codeshield-web/internal/teams"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds every request body, including code sent for rewrite.
const maxBodyBytes = 1 << 20

const (
	msgInvalidRepo     = "Invalid or missing GitHub repository URL."
	msgInvalidScanType = "Invalid or missing scan type. Supported types: open_source, code_security."
	msgScanFailed      = "Failed to scan repository."
	msgAIUnavailable   = "AI assistance is unavailable (no LLM configured)."
)

// Dependencies are the services exposed over HTTP. Advisor may be nil, in
// which case the AI endpoints answer 503.
type Dependencies struct {
	Engine   schemas.ScanEngine
	Sessions *orchestrator.Registry
	Teams    *teams.Service
	Advisor  *advisor.Advisor
	// AILimiter throttles the completion endpoints. Nil disables throttling.
	AILimiter *rate.Limiter
	Version   string
}

// Handlers manages HTTP request handling for the backend.
type Handlers struct {
	log      *zap.Logger
	engine   schemas.ScanEngine
	sessions *orchestrator.Registry
	teams    *teams.Service
	advisor  *advisor.Advisor
	limiter  *rate.Limiter
	version  string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, deps Dependencies) *Handlers {
	return &Handlers{
		log:      logger.Named("api_handlers"),
		engine:   deps.Engine,
		sessions: deps.Sessions,
		teams:    deps.Teams,
		advisor:  deps.Advisor,
		limiter:  deps.AILimiter,
		version:  deps.Version,
	}
}

// RegisterRoutes sets up the HTTP routes. The websocket feed is registered
// separately by the Server so it can bypass request logging and timeouts.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)

	// Endpoints kept compatible with the original web client.
	r.Post("/scan", h.HandleLegacyScan)
	r.Group(func(r chi.Router) {
		h.throttle(r)
		r.Get("/ai", h.HandleLegacyCompletion(schemas.TierPowerful))
		r.Post("/ai", h.HandleLegacyCompletion(schemas.TierPowerful))
		r.Get("/query", h.HandleLegacyCompletion(schemas.TierFast))
		r.Post("/query", h.HandleLegacyCompletion(schemas.TierFast))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				h.throttle(r)
				r.Post("/", h.HandleCreateSession)
			})
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.HandleGetSession)
				r.Delete("/", h.HandleDeleteSession)
				r.Post("/scan", h.HandleStartScan)
				r.Post("/reset", h.HandleResetSession)
				r.Get("/result", h.HandleSessionResult)
			})
		})

		r.Route("/teams", func(r chi.Router) {
			r.Post("/", h.HandleCreateTeam)
			r.Post("/join", h.HandleJoinTeam)
			r.Get("/{teamID}", h.HandleGetTeam)
			r.Get("/{teamID}/history", h.HandleTeamHistory)
		})

		r.Route("/ai", func(r chi.Router) {
			h.throttle(r)
			r.Post("/rewrite", h.HandleRewrite)
			r.Post("/query", h.HandleQuery)
			r.Post("/recommend", h.HandleRecommend)
		})
	})
}

func (h *Handlers) throttle(r chi.Router) {
	if h.limiter != nil {
		r.Use(rateLimit(h.limiter))
	}
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleLegacyScan runs a single scan kind synchronously and returns the
// engine's raw JSON document.
func (h *Handlers) HandleLegacyScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RepositoryURL string `json:"repoUrl"`
		ScanType      string `json:"scanType"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.respondLegacy(w, http.StatusBadRequest, legacyError{Error: msgInvalidRepo})
		return
	}
	ref, err := repository.Parse(req.RepositoryURL)
	if err != nil {
		h.respondLegacy(w, http.StatusBadRequest, legacyError{Error: msgInvalidRepo})
		return
	}
	kind, ok := schemas.ParseScanKind(req.ScanType)
	if !ok {
		h.respondLegacy(w, http.StatusBadRequest, legacyError{Error: msgInvalidScanType})
		return
	}

	h.log.Info("Received request to scan repository", zap.String("repo", ref.String()), zap.String("kind", string(kind)))
	raw, err := h.engine.Scan(r.Context(), schemas.ScanRequest{RepositoryURL: ref.URL(), Kind: kind})
	if err != nil {
		h.log.Error("Scan failed", zap.String("repo", ref.String()), zap.Error(err))
		h.respondLegacy(w, http.StatusInternalServerError, legacyError{Error: msgScanFailed, Details: err.Error()})
		return
	}
	if !json.Valid(raw) {
		h.respondLegacy(w, http.StatusInternalServerError, legacyError{Error: msgScanFailed, Details: "scan output is not valid JSON"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// HandleLegacyCompletion sends the plain-text body to the model and answers
// with plain text.
func (h *Handlers) HandleLegacyCompletion(tier schemas.ModelTier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.advisor == nil {
			http.Error(w, msgAIUnavailable, http.StatusServiceUnavailable)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "Failed to read request body.", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(string(body)) == "" {
			http.Error(w, "Request body must contain a prompt.", http.StatusBadRequest)
			return
		}
		text, err := h.advisor.Complete(r.Context(), string(body), tier)
		if err != nil {
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				h.log.Error("Completion failed", zap.Error(err))
				status = http.StatusBadGateway
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, text)
	}
}

// --- Sessions ---

// HandleCreateSession opens a new idle scan session.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, o, err := h.sessions.Create()
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	h.respondWithSuccess(w, http.StatusCreated, SessionResponse{ID: id, Snapshot: o.Snapshot()})
}

// HandleGetSession returns the current snapshot of a session.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id, o, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respondWithSuccess(w, http.StatusOK, SessionResponse{ID: id, Snapshot: o.Snapshot()})
}

// HandleDeleteSession abandons and removes a session.
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "sessionID")); err != nil {
		h.respondWithErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStartScan starts a scan and returns immediately. Progress is
// observed by polling the session or over the websocket feed.
func (h *Handlers) HandleStartScan(w http.ResponseWriter, r *http.Request) {
	id, o, ok := h.session(w, r)
	if !ok {
		return
	}
	var req StartScanRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	gen, err := o.StartScan(r.Context(), req.RepositoryURL, strings.TrimSpace(req.TeamID))
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	h.respondWithStatus(w, http.StatusAccepted, "accepted", StartScanResponse{SessionID: id, Generation: gen})
}

// HandleResetSession returns a session to Idle.
func (h *Handlers) HandleResetSession(w http.ResponseWriter, r *http.Request) {
	id, o, ok := h.session(w, r)
	if !ok {
		return
	}
	o.Reset()
	h.respondWithSuccess(w, http.StatusOK, SessionResponse{ID: id, Snapshot: o.Snapshot()})
}

// HandleSessionResult renders the finished scan of a session as a JSON or
// SARIF report.
func (h *Handlers) HandleSessionResult(w http.ResponseWriter, r *http.Request) {
	_, o, ok := h.session(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = reporting.FormatJSON
	}
	if format != reporting.FormatJSON && format != reporting.FormatSARIF {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported format: %s", format))
		return
	}
	snap := o.Snapshot()
	if snap.State != schemas.StateCompleted && snap.State != schemas.StateFailed {
		h.respondWithError(w, http.StatusConflict, "Session has no finished scan.")
		return
	}

	contentType := "application/json"
	if format == reporting.FormatSARIF {
		contentType = "application/sarif+json"
	}
	w.Header().Set("Content-Type", contentType)
	rep, err := reporting.NewWriter(format, w, h.version)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	if err := rep.Write(&snap); err != nil {
		h.log.Error("Failed to render report", zap.Error(err))
	}
	if err := rep.Close(); err != nil {
		h.log.Error("Failed to write report", zap.Error(err))
	}
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (string, *orchestrator.Orchestrator, bool) {
	id := chi.URLParam(r, "sessionID")
	o, err := h.sessions.Get(id)
	if err != nil {
		h.respondWithErr(w, err)
		return "", nil, false
	}
	return id, o, true
}

// --- Teams ---

// HandleCreateTeam creates a team bound to a repository.
func (h *Handlers) HandleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req teams.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	team, err := h.teams.Create(r.Context(), req)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	h.respondWithSuccess(w, http.StatusCreated, team)
}

// HandleJoinTeam adds a member to the team owning a join code.
func (h *Handlers) HandleJoinTeam(w http.ResponseWriter, r *http.Request) {
	var req JoinTeamRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	team, err := h.teams.Join(r.Context(), req.Code, req.UserID)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	h.respondWithSuccess(w, http.StatusOK, team)
}

// HandleGetTeam returns one team.
func (h *Handlers) HandleGetTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.teams.Get(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	h.respondWithSuccess(w, http.StatusOK, team)
}

// HandleTeamHistory returns recent runs and the latest trend of a team.
func (h *Handlers) HandleTeamHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			h.respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	hist, err := h.teams.History(r.Context(), chi.URLParam(r, "teamID"), limit)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	h.respondWithSuccess(w, http.StatusOK, hist)
}

// --- AI assistance ---

// HandleRewrite asks the model for an improved version of a code snippet.
func (h *Handlers) HandleRewrite(w http.ResponseWriter, r *http.Request) {
	prompt, ok := h.prompt(w, r)
	if !ok {
		return
	}
	out, err := h.advisor.Rewrite(r.Context(), prompt)
	if err != nil {
		h.respondWithAIErr(w, err)
		return
	}
	h.respondWithSuccess(w, http.StatusOK, out)
}

// HandleQuery answers a natural-language security question.
func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	prompt, ok := h.prompt(w, r)
	if !ok {
		return
	}
	out, err := h.advisor.Query(r.Context(), prompt)
	if err != nil {
		h.respondWithAIErr(w, err)
		return
	}
	h.respondWithSuccess(w, http.StatusOK, out)
}

// HandleRecommend returns remediation advice for one finding.
func (h *Handlers) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	if h.advisor == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, msgAIUnavailable)
		return
	}
	var issue advisor.Issue
	if err := decodeBody(r, &issue); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(issue.Title) == "" {
		h.respondWithError(w, http.StatusBadRequest, "Issue title is required.")
		return
	}
	rec, err := h.advisor.Recommend(r.Context(), issue)
	if err != nil {
		h.respondWithAIErr(w, err)
		return
	}
	h.respondWithSuccess(w, http.StatusOK, rec)
}

func (h *Handlers) prompt(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.advisor == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, msgAIUnavailable)
		return "", false
	}
	var req PromptRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return "", false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		h.respondWithError(w, http.StatusBadRequest, "Prompt is required.")
		return "", false
	}
	return req.Prompt, true
}

// respondWithAIErr reports upstream model failures as 502.
func (h *Handlers) respondWithAIErr(w http.ResponseWriter, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		h.log.Error("LLM request failed", zap.Error(err))
		h.respondWithError(w, http.StatusBadGateway, "The AI service failed to answer, please retry.")
		return
	}
	h.respondWithErr(w, err)
}

// --- Responses ---

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, schemas.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, schemas.ErrSessionNotFound),
		errors.Is(err, schemas.ErrTeamNotFound),
		errors.Is(err, repository.ErrRepositoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, schemas.ErrScanInProgress),
		errors.Is(err, schemas.ErrAlreadyMember):
		return http.StatusConflict
	case errors.Is(err, schemas.ErrSessionLimit):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondWithErr sends err with its mapped status. Internal errors are
// logged and replaced by a generic message.
func (h *Handlers) respondWithErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", zap.Error(err))
		h.respondWithError(w, status, "Internal server error.")
		return
	}
	h.respondWithError(w, status, err.Error())
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

// Generic utility function to convert map[string]interface{} to a specific struct using JSON marshaling.
func mapToStruct[T any](m map[string]interface{}) (T, error) {
	var result T
	if m == nil {
		return result, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return result, err
	}
	err = json.Unmarshal(data, &result)
	return result, err
}

func (h *Handlers) respondLegacy(w http.ResponseWriter, statusCode int, body legacyError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}

// respondWithError sends a standardized JSON error response.
func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	writeResponse(h.log, w, statusCode, Response{Status: "error", Error: message})
}

// respondWithSuccess sends a standardized JSON success response.
func (h *Handlers) respondWithSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	h.respondWithStatus(w, statusCode, "success", data)
}

// respondWithStatus sends a standardized JSON response with a specific status string.
func (h *Handlers) respondWithStatus(w http.ResponseWriter, statusCode int, status string, data interface{}) {
	writeResponse(h.log, w, statusCode, Response{Status: status, Data: data})
}

func writeResponse(log *zap.Logger, w http.ResponseWriter, statusCode int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("Failed to encode response", zap.Error(err))
	}
}
