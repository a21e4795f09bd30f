package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mrmushfiq/inference-gateway/internal/gateway/auth"
	"github.com/mrmushfiq/inference-gateway/internal/gateway/pipeline"
	"github.com/mrmushfiq/inference-gateway/internal/shared/models"
)

// TokenIssuer exchanges a username/password for a bearer credential.
type TokenIssuer interface {
	IssueToken(ctx context.Context, username, password string) (*auth.Token, error)
}

// Authenticator resolves a bearer credential to a principal.
type Authenticator interface {
	ResolvePrincipal(ctx context.Context, bearer string) (*models.Principal, error)
}

type Handler struct {
	gw     *pipeline.Gateway
	issuer TokenIssuer
	authn  Authenticator
}

func New(gw *pipeline.Gateway, issuer TokenIssuer, authn Authenticator) *Handler {
	return &Handler{
		gw:     gw,
		issuer: issuer,
		authn:  authn,
	}
}

// Routes assembles the gateway's HTTP surface.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.HandleHealth)
	r.Post("/token", h.HandleToken)
	r.Post("/predict/{model_name}/{version}", h.HandlePredict)
	r.Get("/v1/me", h.HandleMe)
	return r
}

type predictRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	Output string `json:"output"`
}

// HandlePredict handles POST /predict/{model_name}/{version}
func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	modelName := chi.URLParam(r, "model_name")
	version := chi.URLParam(r, "version")

	output, err := h.gw.Predict(r.Context(), bearerToken(r), modelName, version, req.Text)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, predictResponse{Output: output})
}

// HandleToken handles POST /token with form-encoded username/password
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	token, err := h.issuer.IssueToken(r.Context(), username, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "identity service unavailable")
		return
	}

	writeJSON(w, http.StatusOK, token)
}

type meResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// HandleMe handles GET /v1/me
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, err := h.authn.ResolvePrincipal(r.Context(), bearerToken(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrUnknownPrincipal) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, "identity service unavailable")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{ID: principal.ID, Username: principal.Username})
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// bearerToken extracts the bearer credential from the Authorization header,
// returning "" when absent or malformed so the pipeline reports the auth
// failure (and its outcome record) uniformly.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func writeFailure(w http.ResponseWriter, err error) {
	var f *pipeline.Failure
	if !errors.As(err, &f) {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if f.Kind == pipeline.KindAuthError {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	if f.Kind == pipeline.KindRateLimited && f.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(f.RetryAfter.Seconds())))
	}
	writeError(w, f.Kind.HTTPStatus(), f.Detail)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
