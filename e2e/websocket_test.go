package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/castos/studio/internal/middleware"
	"github.com/castos/studio/internal/model"
	ws "github.com/castos/studio/internal/websocket"
)

type wsEnvelope struct {
	Type     string `json:"type"`
	Snapshot struct {
		ProjectID string `json:"projectId"`
		State     string `json:"state"`
		Polls     int    `json:"polls"`
	} `json:"snapshot"`
	Projects []struct {
		ID string `json:"id"`
	} `json:"projects"`
	Active int `json:"active"`
	Error  struct {
		Code string `json:"code"`
	} `json:"error"`
}

func dialWS(t *testing.T, addr, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws://" + addr + path
	if token != "" {
		url += "?token=" + token
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s failed (status %d): %v", path, status, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("bad message %s: %v", data, err)
	}
	return env
}

func TestWSTrackProject_PendingThenCompleted(t *testing.T) {
	ta := setupApp(t)
	ta.backend.setPendingPolls(3)
	id := ta.backend.addWithStatus("pending")
	addr := ta.listen(t)

	conn := dialWS(t, addr, "/ws/projects/"+id, generateToken(t))

	var states []string
	for {
		env := readEnvelope(t, conn)
		if env.Type != "status" {
			t.Fatalf("unexpected message type %q", env.Type)
		}
		states = append(states, env.Snapshot.State)
		if env.Snapshot.State != "pending" {
			break
		}
	}

	if len(states) != 4 {
		t.Fatalf("expected 3 pending then completed, got %v", states)
	}
	if states[3] != "completed" {
		t.Errorf("expected completed, got %s", states[3])
	}

	// The tracked project is remembered for the owner
	owner := middleware.OwnerKey("test-user-123", "")
	if _, err := ta.store.GetProject(context.Background(), owner, model.ProjectID(id)); err != nil {
		t.Errorf("expected tracked project to be cached: %v", err)
	}
}

func TestWSTrackProject_NotFound(t *testing.T) {
	ta := setupApp(t)
	addr := ta.listen(t)

	conn := dialWS(t, addr, "/ws/projects/404", generateToken(t))

	env := readEnvelope(t, conn)
	if env.Snapshot.State != "error" {
		t.Errorf("expected error state, got %s", env.Snapshot.State)
	}
}

func TestWSTrackProject_ReleasedOnClose(t *testing.T) {
	ta := setupApp(t)
	ta.backend.setPendingPolls(1000)
	id := ta.backend.addWithStatus("pending")
	addr := ta.listen(t)

	conn := dialWS(t, addr, "/ws/projects/"+id, generateToken(t))
	readEnvelope(t, conn)

	topic := ws.ProjectTopic(middleware.OwnerKey("test-user-123", ""), model.ProjectID(id))
	if n := ta.hub.Watchers(topic); n != 1 {
		t.Fatalf("expected 1 watcher, got %d", n)
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ta.hub.Watchers(topic) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("watch was not released after close")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// polling stops with the last viewer
	before := ta.backend.calls()
	time.Sleep(100 * time.Millisecond)
	if after := ta.backend.calls(); after > before+1 {
		t.Errorf("expected polling to stop, saw %d more calls", after-before)
	}
}

func TestWSDashboard_Delete(t *testing.T) {
	ta := setupApp(t)
	first := ta.backend.addCompleted("Hollywood", 5000000)
	ta.backend.addCompleted("Bollywood", 9000000)
	addr := ta.listen(t)

	conn := dialWS(t, addr, "/ws/projects", generateToken(t))

	env := readEnvelope(t, conn)
	if env.Type != "projects" || env.Active != 2 {
		t.Fatalf("expected 2 projects, got %+v", env)
	}

	if err := conn.WriteJSON(map[string]string{"type": "delete", "projectId": first}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	for {
		env = readEnvelope(t, conn)
		if env.Type == "projects" && env.Active == 1 {
			break
		}
	}
	if env.Projects[0].ID == first {
		t.Errorf("deleted project still listed")
	}
	if ta.backend.exists(first) {
		t.Error("expected backend delete")
	}
}

func TestWSDashboard_DeleteFailure(t *testing.T) {
	ta := setupApp(t)
	ta.backend.addCompleted("Hollywood", 5000000)
	addr := ta.listen(t)

	conn := dialWS(t, addr, "/ws/projects", generateToken(t))
	readEnvelope(t, conn)

	if err := conn.WriteJSON(map[string]string{"type": "delete", "projectId": "999"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	for {
		env := readEnvelope(t, conn)
		if env.Type == "error" {
			if env.Error.Code != "COMMAND_FAILED" {
				t.Errorf("expected COMMAND_FAILED, got %s", env.Error.Code)
			}
			return
		}
		if env.Active != 1 {
			t.Fatalf("snapshot changed after failed delete: %+v", env)
		}
	}
}

func TestWSRequiresUpgrade(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/ws/projects", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUpgradeRequired)
}

func TestWSRepeatedOpenClose(t *testing.T) {
	ta := setupApp(t)
	id := ta.backend.addWithStatus("pending")
	ta.backend.setPendingPolls(1000)
	addr := ta.listen(t)

	owner := middleware.OwnerKey("test-user-123", "")
	paths := []string{"/ws/projects/404", "/ws/projects/" + id, "/ws/projects"}

	for i := 0; i < 5; i++ {
		for _, path := range paths {
			conn := dialWS(t, addr, path, generateToken(t))
			readEnvelope(t, conn)

			// ping goes through the writer right before teardown
			conn.WriteJSON(map[string]string{"type": "ping"})
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		}
	}

	topics := []string{
		ws.ProjectTopic(owner, "404"),
		ws.ProjectTopic(owner, model.ProjectID(id)),
		ws.CollectionTopic(owner),
	}
	deadline := time.Now().Add(2 * time.Second)
	for _, topic := range topics {
		for ta.hub.Watchers(topic) != 0 {
			if time.Now().After(deadline) {
				t.Fatalf("%s still has watchers after close", topic)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	// the server keeps accepting connections after the churn
	conn := dialWS(t, addr, "/ws/projects", generateToken(t))
	if env := readEnvelope(t, conn); env.Type != "projects" {
		t.Errorf("expected projects snapshot, got %q", env.Type)
	}
}
