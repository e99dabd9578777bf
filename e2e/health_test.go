package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/castos/studio/internal/auth"
)

// signClaims issues an HMAC token with arbitrary Clerk-style claims
func signClaims(t *testing.T, claims auth.Claims) string {
	t.Helper()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign claims: %v", err)
	}
	return signed
}

func TestRootTimestamp(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if ts, ok := body["timestamp"].(float64); !ok || ts <= 0 {
		t.Errorf("expected unix timestamp, got %v", body["timestamp"])
	}
}

func TestHealth_ReportsIntegrations(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/health", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}

	services, ok := body["services"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected services object, got %v", body["services"])
	}

	// the test app talks to a fake backend and runs without Redis, R2 or Clerk
	want := map[string]bool{
		"castos":  true,
		"redis":   false,
		"r2":      false,
		"clerk":   false,
		"gateway": false,
	}
	for key, expected := range want {
		got, ok := services[key].(bool)
		if !ok {
			t.Errorf("missing %q in services: %v", key, services)
			continue
		}
		if got != expected {
			t.Errorf("services[%q] = %v, want %v", key, got, expected)
		}
	}
}

func TestAuthVerify_NoToken(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/auth/verify", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestAuthVerify_MalformedToken(t *testing.T) {
	ta := setupApp(t)

	for _, token := range []string{"not-a-jwt", "a.b.c", signClaims(t, auth.Claims{UserID: "u1"})[:20]} {
		resp, err := doRequest(ta.app, http.MethodGet, "/auth/verify", "", map[string]string{
			"Authorization": "Bearer " + token,
		})
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusUnauthorized)
		if resp.Header.Get("X-User-Id") != "" {
			t.Errorf("identity leaked for token %q", token)
		}
	}
}

func TestAuthVerify_EmitsUserHeaders(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/auth/verify", "", map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	if got := resp.Header.Get("X-User-Id"); got != "test-user-123" {
		t.Errorf("expected X-User-Id test-user-123, got %q", got)
	}
	if got := resp.Header.Get("X-User-Email"); got != "test@example.com" {
		t.Errorf("expected X-User-Email, got %q", got)
	}
	if got := resp.Header.Get("X-User-Name"); got != "Test User" {
		t.Errorf("expected X-User-Name, got %q", got)
	}
	if got := resp.Header.Get("X-User-Avatar"); got != "" {
		t.Errorf("expected no avatar header, got %q", got)
	}
}

func TestAuthVerify_AvatarFallback(t *testing.T) {
	ta := setupApp(t)

	cases := []struct {
		name   string
		claims auth.Claims
		want   string
	}{
		{
			name:   "image_url only",
			claims: auth.Claims{UserID: "u1", ImageURL: "https://img.clerk.test/u1.png"},
			want:   "https://img.clerk.test/u1.png",
		},
		{
			name:   "picture wins",
			claims: auth.Claims{UserID: "u2", Picture: "https://img.clerk.test/p.png", ImageURL: "https://img.clerk.test/u2.png"},
			want:   "https://img.clerk.test/p.png",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := doRequest(ta.app, http.MethodGet, "/auth/verify", "", map[string]string{
				"Authorization": "Bearer " + signClaims(t, tc.claims),
			})
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			assertStatus(t, resp, http.StatusOK)

			if got := resp.Header.Get("X-User-Id"); got != tc.claims.UserID {
				t.Errorf("expected X-User-Id %q, got %q", tc.claims.UserID, got)
			}
			if got := resp.Header.Get("X-User-Avatar"); got != tc.want {
				t.Errorf("expected X-User-Avatar %q, got %q", tc.want, got)
			}
		})
	}
}
