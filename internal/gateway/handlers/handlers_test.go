package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrmushfiq/inference-gateway/internal/gateway/auth"
	"github.com/mrmushfiq/inference-gateway/internal/gateway/pipeline"
	"github.com/mrmushfiq/inference-gateway/internal/gateway/policy"
	"github.com/mrmushfiq/inference-gateway/internal/gateway/providers"
	"github.com/mrmushfiq/inference-gateway/internal/gateway/ratelimit"
	"github.com/mrmushfiq/inference-gateway/internal/shared/database"
	"github.com/mrmushfiq/inference-gateway/internal/shared/models"
)

// fakeDirectory backs every directory slice the pipeline consumes.
type fakeDirectory struct {
	usersByName map[string]*models.User
	usersByID   map[string]*models.Principal
	versions    map[string]*models.ModelVersion
	perms       map[string][]models.Permission
}

func (d *fakeDirectory) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, ok := d.usersByName[username]
	if !ok {
		return nil, database.ErrNotFound
	}
	return user, nil
}

func (d *fakeDirectory) UserByID(ctx context.Context, id string) (*models.Principal, error) {
	p, ok := d.usersByID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return p, nil
}

func (d *fakeDirectory) ModelVersionByNameVersion(ctx context.Context, name, version string) (*models.ModelVersion, error) {
	mv, ok := d.versions[name+"/"+version]
	if !ok {
		return nil, database.ErrNotFound
	}
	return mv, nil
}

func (d *fakeDirectory) PermissionsFor(ctx context.Context, principalID, modelVersionID string) ([]models.Permission, error) {
	return d.perms[principalID+"/"+modelVersionID], nil
}

type fakeCounterStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (s *fakeCounterStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

func (s *fakeCounterStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

type stubRouter struct {
	output string
	err    error
}

func (r *stubRouter) Dispatch(ctx context.Context, mv *models.ModelVersion, text string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.output, nil
}

type fixture struct {
	srv    *httptest.Server
	authn  *auth.Authenticator
	router *stubRouter
	tomID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	hashStr := string(hash)
	tomID := uuid.NewString()

	dir := &fakeDirectory{
		usersByName: map[string]*models.User{
			"tom": {ID: tomID, Username: "tom", PasswordHash: &hashStr},
		},
		usersByID: map[string]*models.Principal{
			tomID: {ID: tomID, Username: "tom"},
		},
		versions: map[string]*models.ModelVersion{
			"tiny-llama/v1": {
				ID:                  "mv-tiny",
				ModelName:           "tiny-llama",
				Version:             "v1",
				ProviderKind:        models.ProviderInternal,
				InternalEndpointURL: "http://tiny-llama.internal:8001",
			},
		},
		perms: map[string][]models.Permission{
			tomID + "/mv-tiny": {{Allowed: true, Policy: &models.Policy{WindowSeconds: 300, MaxRequests: 2}}},
		},
	}

	authn := auth.New("test-secret", 30*time.Minute, dir)
	resolver := policy.New(dir, time.Minute, nil)
	limiter := ratelimit.New(&fakeCounterStore{counters: make(map[string]int64)})
	router := &stubRouter{output: "generated text"}
	gw := pipeline.New(authn, dir, resolver, limiter, router, pipeline.NewLogRecorder(nil, nil))

	h := New(gw, authn, authn)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, authn: authn, router: router, tomID: tomID}
}

func (fx *fixture) login(t *testing.T) string {
	t.Helper()

	resp, err := http.PostForm(fx.srv.URL+"/token", url.Values{
		"username": {"tom"},
		"password": {"hunter2"},
	})
	if err != nil {
		t.Fatalf("POST /token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}

	var tok auth.Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return tok.AccessToken
}

func (fx *fixture) predict(t *testing.T, token, model, version, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, fx.srv.URL+"/predict/"+model+"/"+version, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeDetail(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["detail"]
}

func TestPredictEndToEnd(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	token := fx.login(t)

	resp := fx.predict(t, token, "tiny-llama", "v1", `{"text":"hello"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Output != "generated text" {
		t.Fatalf("unexpected output: %q", out.Output)
	}
}

func TestPredictMissingBearer(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	resp := fx.predict(t, "", "tiny-llama", "v1", `{"text":"hello"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") != "Bearer" {
		t.Fatal("missing WWW-Authenticate header")
	}
	decodeDetail(t, resp)
}

func TestPredictRateLimitedWithRetryAfter(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	token := fx.login(t)

	for i := 0; i < 2; i++ {
		resp := fx.predict(t, token, "tiny-llama", "v1", `{"text":"hello"}`)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, resp.StatusCode)
		}
	}

	resp := fx.predict(t, token, "tiny-llama", "v1", `{"text":"hello"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		t.Fatal("missing Retry-After header")
	}
	decodeDetail(t, resp)
}

func TestPredictUnknownModel(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	token := fx.login(t)

	resp := fx.predict(t, token, "no-such-model", "v1", `{"text":"hello"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	decodeDetail(t, resp)
}

func TestPredictUpstreamFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	token := fx.login(t)
	fx.router.err = &providers.UpstreamError{StatusHint: 500, Message: "upstream exploded"}

	resp := fx.predict(t, token, "tiny-llama", "v1", `{"text":"hello"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	decodeDetail(t, resp)
}

func TestPredictInvalidBody(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	token := fx.login(t)

	resp := fx.predict(t, token, "tiny-llama", "v1", `not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = fx.predict(t, token, "tiny-llama", "v1", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTokenWrongPassword(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	resp, err := http.PostForm(fx.srv.URL+"/token", url.Values{
		"username": {"tom"},
		"password": {"wrong"},
	})
	if err != nil {
		t.Fatalf("POST /token: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	decodeDetail(t, resp)
}

func TestMe(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	token := fx.login(t)

	req, _ := http.NewRequest(http.MethodGet, fx.srv.URL+"/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /v1/me: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var me meResponse
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.ID != fx.tomID || me.Username != "tom" {
		t.Fatalf("unexpected principal: %#v", me)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	resp, err := http.Get(fx.srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
