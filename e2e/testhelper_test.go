package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/castos/studio/internal/auth"
	"github.com/castos/studio/internal/cache"
	"github.com/castos/studio/internal/client"
	"github.com/castos/studio/internal/config"
	"github.com/castos/studio/internal/handler"
	"github.com/castos/studio/internal/middleware"
	"github.com/castos/studio/internal/server"
	"github.com/castos/studio/internal/service"
	ws "github.com/castos/studio/internal/websocket"
	"github.com/castos/studio/internal/worker"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	backend  *fakeBackend
	server   *httptest.Server
	store    *cache.MemoryStore
	reports  *worker.InlineDispatcher
	hub      *ws.Hub
	verifier *auth.HMACVerifier
}

// setupApp creates a Fiber app wired like main.go: in-memory store, inline
// report dispatcher, no R2, and a fake casting backend.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	backend := newFakeBackend()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	validate := validator.New()
	store := cache.NewMemoryStore()
	hub := ws.NewHub()
	verifier := auth.NewHMACVerifier(testJWTSecret)

	castos := client.NewCastOSClient(&config.CastOSConfig{
		BaseURL: srv.URL,
		Timeout: 5,
	}, nil)

	projectService := service.NewProjectService(store)
	reportService := service.NewReportService(store, nil)
	reportWorker := worker.NewReportWorker(reportService, nil, hub, time.Hour)
	dispatcher := worker.NewInlineDispatcher(reportWorker)
	reportService.SetDispatcher(dispatcher)

	policy := service.DetailPolicy()
	policy.Interval = 20 * time.Millisecond

	app := server.New(server.Deps{
		Projects:    handler.NewProjectHandler(castos, service.NewSubmissionService(validate), projectService, reportService),
		Auth:        handler.NewAuthHandler(verifier),
		Sessions:    ws.NewSessions(hub, castos, projectService, policy, 50*time.Millisecond),
		Credentials: middleware.NewCredentialsMiddleware(verifier),
		RateLimiter: middleware.NewRateLimiter(nil),
		// Use very high rate limits so tests don't get blocked
		SubmitPerHour: 10000,
		ExportPerHour: 10000,
		Health:        server.HealthReport(castos, nil, nil, nil, false),
	})

	return &testApp{
		app:      app,
		backend:  backend,
		server:   srv,
		store:    store,
		reports:  dispatcher,
		hub:      hub,
		verifier: verifier,
	}
}

// listen serves the app on a random local port for WebSocket tests
func (ta *testApp) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go ta.app.Listener(ln)
	t.Cleanup(func() { ta.app.Shutdown() })
	return ln.Addr().String()
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	return generateTokenFor(t, "test-user-123")
}

func generateTokenFor(t *testing.T, userID string) string {
	t.Helper()
	signed, err := auth.NewHMACVerifier(testJWTSecret).Sign(userID, "Test User", "test@example.com", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode extracts error.code from an error envelope
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

// fakeBackend imitates the casting optimization API. Projects stay pending
// for pendingPolls detail fetches, then complete with a fixed result.
type fakeBackend struct {
	mu           sync.Mutex
	nextID       int
	projects     map[string]map[string]interface{}
	detailPolls  map[string]int
	pendingPolls int
	failing      bool
	requireAuth  bool
	authHeaders  []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nextID:   1,
		projects: make(map[string]map[string]interface{}),

		detailPolls: make(map[string]int),
	}
}

// addCompleted seeds a completed project with two assignments
func (b *fakeBackend) addCompleted(industry string, budget float64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("%d", b.nextID)
	b.nextID++
	p := newProject(id, "Seeded", industry, budget)
	complete(p)
	b.projects[id] = p
	return id
}

// addWithStatus seeds a project in an arbitrary status
func (b *fakeBackend) addWithStatus(status string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("%d", b.nextID)
	b.nextID++
	p := newProject(id, "Seeded", "Hollywood", 5000000)
	p["status"] = status
	b.projects[id] = p
	return id
}

func (b *fakeBackend) setFailing(v bool) {
	b.mu.Lock()
	b.failing = v
	b.mu.Unlock()
}

func (b *fakeBackend) setRequireAuth(v bool) {
	b.mu.Lock()
	b.requireAuth = v
	b.mu.Unlock()
}

func (b *fakeBackend) setPendingPolls(n int) {
	b.mu.Lock()
	b.pendingPolls = n
	b.mu.Unlock()
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.authHeaders)
}

func (b *fakeBackend) field(id, key string) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.projects[id]; ok {
		return p[key]
	}
	return nil
}

func (b *fakeBackend) exists(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.projects[id]
	return ok
}

func (b *fakeBackend) lastAuth() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.authHeaders) == 0 {
		return ""
	}
	return b.authHeaders[len(b.authHeaders)-1]
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))

	if b.failing {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"detail": "database unavailable"})
		return
	}
	if b.requireAuth && r.Header.Get("Authorization") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"detail": "Not authenticated"})
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPost && path == "/api/projects/run":
		var req struct {
			Title    string  `json:"title"`
			Plot     string  `json:"plot"`
			Budget   float64 `json:"budget"`
			Industry string  `json:"industry"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"detail": []map[string]interface{}{{"msg": "invalid body"}},
			})
			return
		}
		id := fmt.Sprintf("%d", b.nextID)
		b.nextID++
		p := newProject(id, req.Title, req.Industry, req.Budget)
		b.projects[id] = p
		writeJSON(w, http.StatusOK, p)

	case r.Method == http.MethodGet && path == "/api/projects":
		list := make([]map[string]interface{}, 0, len(b.projects))
		for i := 1; i < b.nextID; i++ {
			if p, ok := b.projects[fmt.Sprintf("%d", i)]; ok {
				list = append(list, p)
			}
		}
		writeJSON(w, http.StatusOK, list)

	case strings.HasPrefix(path, "/api/projects/"):
		id := strings.TrimPrefix(path, "/api/projects/")
		p, ok := b.projects[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"detail": "Project not found"})
			return
		}
		switch r.Method {
		case http.MethodGet:
			b.detailPolls[id]++
			if p["status"] == "pending" && b.detailPolls[id] > b.pendingPolls {
				complete(p)
			}
			writeJSON(w, http.StatusOK, p)
		case http.MethodDelete:
			delete(b.projects, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newProject(id, title, industry string, budget float64) map[string]interface{} {
	n := 0
	fmt.Sscanf(id, "%d", &n)
	return map[string]interface{}{
		"id":                  n,
		"title":               title,
		"plot":                "A heist in Mumbai",
		"budget_cap":          budget,
		"industry":            industry,
		"status":              "pending",
		"raw_characters":      nil,
		"optimization_result": nil,
		"created_at":          "2024-05-01T10:00:00.123456",
	}
}

func complete(p map[string]interface{}) {
	p["status"] = "completed"
	p["raw_characters"] = map[string]interface{}{
		"characters": []map[string]interface{}{
			{
				"name":   "Lead",
				"gender": "Male",
				"traits": []string{"brooding", "charismatic"},
				"actors": []map[string]interface{}{
					{"name": "A. Star", "salary": 2000000, "box_office": 9, "rating": 8.5, "versatility": 7, "risk": 2},
					{"name": "B. Backup", "salary": 900000, "box_office": 5, "rating": 6.5, "versatility": 6, "risk": 4},
				},
			},
			{
				"name":   "Villain",
				"gender": "Female",
				"traits": "menacing",
				"actors": []map[string]interface{}{
					{"name": "C. Shadow", "salary": 1000000, "box_office": 6, "rating": 7.2, "versatility": 8, "risk": 3},
				},
			},
		},
	}
	p["optimization_result"] = []map[string]interface{}{
		{"role": "Lead", "actor_name": "A. Star", "salary": 2000000, "box_office": 9, "rating": 8.5, "risk": 2},
		{"role": "Villain", "actor_name": "C. Shadow", "salary": 1000000, "box_office": 6, "rating": 7.2, "risk": 3},
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
