package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/hafedapp/entitlement/internal/api/middleware"
	"github.com/hafedapp/entitlement/internal/identity"
	"github.com/hafedapp/entitlement/internal/license"
	"github.com/hafedapp/entitlement/internal/profile"
)

const productID = "hafed-premium"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func makeChiRequest(method, path string, body []byte, params map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()

	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	return req, w
}

func asCaller(req *http.Request, id *identity.Identity) *http.Request {
	return req.WithContext(middleware.WithIdentity(req.Context(), id))
}

func parseEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var env map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &env)
	require.NoError(t, err, "failed to parse response body")
	return env
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env := parseEnvelope(t, w)
	apiErr, ok := env["error"].(map[string]interface{})
	require.True(t, ok, "response has no error object: %s", w.Body.String())
	return apiErr["code"].(string)
}

type mockVerifier struct {
	verifyFn func(ctx context.Context, productID, key string) (*license.Result, error)
}

func (m *mockVerifier) Verify(ctx context.Context, productID, key string) (*license.Result, error) {
	return m.verifyFn(ctx, productID, key)
}

func verdict(v license.Verdict) *mockVerifier {
	return &mockVerifier{verifyFn: func(context.Context, string, string) (*license.Result, error) {
		return &license.Result{Verdict: v}, nil
	}}
}

func premiumShadow(email string, expires time.Time) *profile.Profile {
	key := "KEY-1"
	return profile.NewShadow(email, profile.Grant{LicenseKey: &key, ExpiresAt: expires})
}

// blockingRepo wraps a Repository and blocks reads until ctx is done.
type blockingRepo struct {
	profile.Repository
}

func (b blockingRepo) GetByAuthUserID(ctx context.Context, _ string) (*profile.Profile, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
