package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	specpkg "github.com/hafedapp/entitlement/api"
	"github.com/hafedapp/entitlement/internal/activation"
	"github.com/hafedapp/entitlement/internal/api"
	"github.com/hafedapp/entitlement/internal/api/middleware"
	"github.com/hafedapp/entitlement/internal/entitlement"
	"github.com/hafedapp/entitlement/internal/identity"
	"github.com/hafedapp/entitlement/internal/license"
	"github.com/hafedapp/entitlement/internal/metrics"
	"github.com/hafedapp/entitlement/internal/profile/profiletest"
	"github.com/hafedapp/entitlement/internal/purchase"
	"github.com/hafedapp/entitlement/internal/reconcile"
	"github.com/hafedapp/entitlement/internal/trial"
)

const (
	jwtSecret = "router-test-secret"
	productID = "hafed-premium"
)

// openAPISpec is the minimal structure needed to extract paths from the API document.
type openAPISpec struct {
	Paths map[string]map[string]interface{} `json:"paths"`
}

type testServer struct {
	router *chi.Mux
	store  *profiletest.Store
}

// newTestServer wires every route against in-memory stores and a fake
// license authority that accepts only VALID-KEY.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	authority := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("license_key") != "VALID-KEY" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"message":"That license does not exist."}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"uses":1,"purchase":{"email":"member@example.com","refunded":false,"disputed":false,"chargebacked":false}}`))
	}))
	t.Cleanup(authority.Close)

	store := profiletest.NewStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	recon := reconcile.NewService(store, reconcile.WithAutoRegister(true), reconcile.WithRecorder(m))
	gate := trial.NewGate(trial.NewMemoryStore(nil), map[trial.Action]trial.Policy{
		trial.ActionGame:     {Limit: 3},
		trial.ActionAnalysis: {Limit: 1},
	})

	router := api.NewRouter(api.RouterDeps{
		Version:           "test",
		OpenAPISpec:       specpkg.OpenAPISpec,
		Identity:          identity.NewJWTResolver(jwtSecret, identity.WithAudience("authenticated")),
		Purchases:         purchase.NewService(store, productID),
		WebhookTokens:     purchase.NewTokenChecker(""),
		Activation:        activation.NewService(license.NewClient(authority.URL), recon, store, productID),
		Reconciler:        recon,
		Evaluator:         entitlement.NewEvaluator([]string{"owner@example.com"}),
		Trials:            gate,
		Metrics:           m,
		MetricsHandler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ActivationLimiter: middleware.NewRateLimiter(1, 5),
		CORSOrigin:        "*",
	})
	return &testServer{router: router, store: store}
}

func bearer(t *testing.T, sub, email string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"aud":   "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func (s *testServer) do(method, path, auth, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) ping(email string) *httptest.ResponseRecorder {
	form := url.Values{
		"email":       {email},
		"product_id":  {productID},
		"license_key": {"SALE-KEY"},
		"sale_id":     {"sale-1"},
	}
	return s.do(http.MethodPost, "/webhooks/purchase", "", "application/x-www-form-urlencoded", form.Encode())
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

func meData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code)
	return decode(t, w)["data"].(map[string]interface{})
}

// --- Scenarios ---

func TestPurchaseBeforeSignUp_ClaimedOnFirstRead(t *testing.T) {
	srv := newTestServer(t)

	// Arrange
	w := srv.ping(" Member@Example.com")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reserved")
	rows := srv.store.ByEmail("member@example.com")
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].AuthUserID)

	// Act
	data := meData(t, srv.do(http.MethodGet, "/me", bearer(t, "user-1", "member@example.com"), "", ""))

	// Assert
	assert.Equal(t, true, data["entitled"])
	assert.Equal(t, "premium", data["reason"])
	rows = srv.store.ByEmail("member@example.com")
	require.Len(t, rows, 1, "no duplicate profile")
	require.NotNil(t, rows[0].AuthUserID)
	assert.Equal(t, "user-1", *rows[0].AuthUserID)
}

func TestPurchaseBeforeSignUp_ExplicitClaim(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, srv.ping("member@example.com").Code)
	auth := bearer(t, "user-1", "member@example.com")

	w := srv.do(http.MethodPost, "/profile/claim", auth, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["claimed"])

	w = srv.do(http.MethodPost, "/profile/claim", auth, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["claimed"], "second claim finds nothing")

	other := srv.do(http.MethodPost, "/profile/claim", bearer(t, "user-2", "other@example.com"), "", "")
	assert.Equal(t, false, decode(t, other)["claimed"])
	assert.Len(t, srv.store.Profiles(), 1)
}

func TestPurchaseAfterSignUp_UpgradesExistingProfile(t *testing.T) {
	srv := newTestServer(t)
	auth := bearer(t, "user-1", "member@example.com")

	assert.Equal(t, false, meData(t, srv.do(http.MethodGet, "/me", auth, "", ""))["entitled"])

	w := srv.ping("member@example.com")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "upgraded")

	assert.Equal(t, true, meData(t, srv.do(http.MethodGet, "/me", auth, "", ""))["entitled"])
	assert.Len(t, srv.store.Profiles(), 1)
}

func TestLicenseActivation(t *testing.T) {
	srv := newTestServer(t)
	auth := bearer(t, "user-1", "member@example.com")

	w := srv.do(http.MethodPost, "/license/activate", auth, "application/json", `{"license_key":"WRONG"}`)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, false, meData(t, srv.do(http.MethodGet, "/me", auth, "", ""))["entitled"])

	w = srv.do(http.MethodPost, "/license/activate", auth, "application/json", `{"license_key":"VALID-KEY"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["premium_expires_at"])

	assert.Equal(t, true, meData(t, srv.do(http.MethodGet, "/me", auth, "", ""))["entitled"])
}

func TestLicenseActivation_RequiresAuth(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(http.MethodPost, "/license/activate", "", "application/json", `{"license_key":"VALID-KEY"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(http.MethodPost, "/license/activate", "Bearer not-a-jwt", "application/json", `{"license_key":"VALID-KEY"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, srv.store.Profiles())
}

func TestLicenseActivation_RateLimited(t *testing.T) {
	srv := newTestServer(t)
	auth := bearer(t, "user-1", "member@example.com")

	var last int
	for range 6 {
		last = srv.do(http.MethodPost, "/license/activate", auth, "application/json", `{"license_key":"WRONG"}`).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestTrialGate_AnonymousThenEntitled(t *testing.T) {
	srv := newTestServer(t)

	startAnon := func() int {
		req := httptest.NewRequest(http.MethodPost, "/trial/analysis", nil)
		req.Header.Set("X-Device-ID", "device-1")
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, startAnon())
	assert.Equal(t, http.StatusPaymentRequired, startAnon())

	owner := bearer(t, "user-9", "owner@example.com")
	for range 3 {
		assert.Equal(t, http.StatusOK, srv.do(http.MethodPost, "/trial/analysis", owner, "", "").Code)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(http.MethodGet, "/webhooks/purchase", "", "", "")

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	apiErr := decode(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "METHOD_NOT_ALLOWED", apiErr["code"])
}

func TestRouter_Preflight(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(http.MethodOptions, "/license/activate", "", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_MetricsExposesCounters(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, srv.ping("member@example.com").Code)

	w := srv.do(http.MethodGet, "/metrics", "", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "webhook_pings_total")
}

// --- OpenAPI coverage ---

func TestOpenAPIDocument_RoutesCoverAllPaths(t *testing.T) {
	t.Parallel()

	// Parse spec paths from the embedded YAML
	specJSON, err := yaml.YAMLToJSON(specpkg.OpenAPISpec)
	require.NoError(t, err, "embedded spec must convert to JSON")

	var spec openAPISpec
	err = yaml.Unmarshal(specJSON, &spec)
	require.NoError(t, err, "spec JSON must unmarshal")

	specRoutes := extractSpecRoutes(t, spec)
	require.NotEmpty(t, specRoutes, "OpenAPI document should define at least one route")

	chiRoutes := extractChiRoutes(t, newTestServer(t).router)
	require.NotEmpty(t, chiRoutes, "Chi router should have at least one route")

	for _, sr := range specRoutes {
		t.Run(fmt.Sprintf("openapi_%s_%s_has_Chi_route", sr.method, sr.path), func(t *testing.T) {
			assert.Contains(t, chiRoutes, sr, "OpenAPI route %s %s not found in Chi router", sr.method, sr.path)
		})
	}

	for _, cr := range chiRoutes {
		t.Run(fmt.Sprintf("Chi_%s_%s_has_openapi_path", cr.method, cr.path), func(t *testing.T) {
			assert.Contains(t, specRoutes, cr, "Chi route %s %s not found in OpenAPI document", cr.method, cr.path)
		})
	}
}

type route struct {
	method string
	path   string
}

func sortRoutes(routes []route) {
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].path == routes[j].path {
			return routes[i].method < routes[j].method
		}
		return routes[i].path < routes[j].path
	})
}

func extractSpecRoutes(t *testing.T, spec openAPISpec) []route {
	t.Helper()
	var routes []route
	for path, methods := range spec.Paths {
		for method := range methods {
			routes = append(routes, route{method: strings.ToUpper(method), path: path})
		}
	}
	sortRoutes(routes)
	return routes
}

func extractChiRoutes(t *testing.T, r *chi.Mux) []route {
	t.Helper()
	var routes []route
	walkFunc := func(method, routePath string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		// Chi subroutes produce trailing slashes (/trial/) while OpenAPI
		// uses /trial.
		normalized := strings.TrimRight(routePath, "/")
		if normalized == "" {
			normalized = "/"
		}
		routes = append(routes, route{method: method, path: normalized})
		return nil
	}
	require.NoError(t, chi.Walk(r, walkFunc), "chi.Walk should not error")
	sortRoutes(routes)
	return routes
}
