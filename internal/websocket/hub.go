package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/castos/studio/internal/client"
	"github.com/castos/studio/internal/model"
	"github.com/gofiber/contrib/websocket"
)

// Command handles a client message addressed to a watch, e.g. a delete
// request on the dashboard collection
type Command func(ctx context.Context, msg model.WSMessage) error

// StartFunc launches the background loop feeding a topic. It must not block;
// the loop runs until ctx is cancelled, which happens when the last client
// leaves. tokens always yields the most recent credential any subscriber sent.
type StartFunc func(ctx context.Context, tokens client.TokenSource, publish func([]byte)) Command

// Client represents a WebSocket client
type Client struct {
	Topic string
	Conn  *websocket.Conn
	Send  chan []byte
}

// watch is the shared state of one topic
type watch struct {
	clients map[*Client]bool
	cancel  context.CancelFunc
	ctx     context.Context
	token   atomic.Value // string
	command Command
	last    []byte
}

func (w *watch) tokenSource() client.TokenSource {
	return func(context.Context) (string, error) {
		token, _ := w.token.Load().(string)
		return token, nil
	}
}

// Hub fans messages out to clients grouped by topic. Topics that have a
// StartFunc own one background loop shared by all their subscribers, so two
// tabs watching the same project never poll it twice.
type Hub struct {
	mu      sync.Mutex
	watches map[string]*watch
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		watches: make(map[string]*watch),
	}
}

// Join subscribes c to its topic. The first subscriber of a topic starts the
// topic's loop; late joiners immediately receive the last published message.
func (h *Hub) Join(c *Client, token string, start StartFunc) {
	h.mu.Lock()
	w, ok := h.watches[c.Topic]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		w = &watch{
			clients: make(map[*Client]bool),
			ctx:     ctx,
			cancel:  cancel,
		}
		w.token.Store("")
		h.watches[c.Topic] = w
	}
	w.clients[c] = true
	if token != "" {
		w.token.Store(token)
	}
	if w.last != nil {
		select {
		case c.Send <- w.last:
		default:
		}
	}
	h.mu.Unlock()

	log.Printf("[Hub] client joined %s (%d watching)", c.Topic, h.Watchers(c.Topic))

	if !ok && start != nil {
		topic := c.Topic
		cmd := start(w.ctx, w.tokenSource(), func(msg []byte) {
			h.publishTo(topic, w, msg)
		})
		h.mu.Lock()
		w.command = cmd
		h.mu.Unlock()
	}
}

// Leave unsubscribes c. The topic's loop is cancelled when nobody is left.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	w, ok := h.watches[c.Topic]
	if !ok {
		return
	}
	if _, ok := w.clients[c]; ok {
		delete(w.clients, c)
		close(c.Send)
	}
	if len(w.clients) == 0 {
		w.cancel()
		delete(h.watches, c.Topic)
		log.Printf("[Hub] %s released", c.Topic)
	}
}

// SetToken rotates the credential used by the topic's loop
func (h *Hub) SetToken(topic, token string) {
	if token == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.watches[topic]; ok {
		w.token.Store(token)
	}
}

// Publish sends msg to every subscriber of topic
func (h *Hub) Publish(topic string, msg []byte) {
	h.mu.Lock()
	w, ok := h.watches[topic]
	h.mu.Unlock()
	if ok {
		h.publishTo(topic, w, msg)
	}
}

// publishTo ignores messages from a loop whose watch has been released
func (h *Hub) publishTo(topic string, w *watch, msg []byte) {
	if msg == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.watches[topic] != w {
		return
	}
	w.last = msg
	for c := range w.clients {
		select {
		case c.Send <- msg:
		default:
			close(c.Send)
			delete(w.clients, c)
		}
	}
}

// Watchers returns the number of clients subscribed to topic
func (h *Hub) Watchers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.watches[topic]; ok {
		return len(w.clients)
	}
	return 0
}

func (h *Hub) command(topic string) (Command, context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.watches[topic]; ok {
		return w.command, w.ctx
	}
	return nil, nil
}

// BroadcastProgress sends a report export progress update
func (h *Hub) BroadcastProgress(jobID string, progress int, status model.JobStatus, step string) {
	h.broadcast(ReportTopic(jobID), model.WSProgressMessage{
		Type:        model.WSMessageTypeProgress,
		JobID:       jobID,
		Progress:    progress,
		Status:      status,
		CurrentStep: step,
	})
}

// BroadcastComplete sends a report export completion message
func (h *Hub) BroadcastComplete(jobID string, result interface{}) {
	h.broadcast(ReportTopic(jobID), model.WSCompleteMessage{
		Type:   model.WSMessageTypeComplete,
		JobID:  jobID,
		Result: result,
	})
}

// BroadcastError sends a report export error message
func (h *Hub) BroadcastError(jobID string, code, message string) {
	h.broadcast(ReportTopic(jobID), model.WSErrorMessage{
		Type: model.WSMessageTypeError,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

func (h *Hub) broadcast(topic string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to marshal %s message: %v", topic, err)
		return
	}
	h.Publish(topic, data)
}

// Serve runs a WebSocket connection subscribed to topic until it closes.
// It returns only after the writer has stopped, since the connection is
// recycled as soon as the handler returns.
func (h *Hub) Serve(c *websocket.Conn, topic, token string, start StartFunc) {
	cl := &Client{
		Topic: topic,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Join(cl, token, start)

	quit := make(chan struct{})
	done := make(chan struct{})
	defer func() {
		h.Leave(cl)
		close(quit)
		<-done
	}()

	go h.writer(c, cl.Send, quit, done)

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case model.WSMessageTypePing:
			h.reply(cl, model.WSMessage{Type: model.WSMessageTypePong})
		case model.WSMessageTypeToken:
			h.SetToken(topic, msg.Token)
		default:
			cmd, ctx := h.command(topic)
			if cmd == nil {
				continue
			}
			if err := cmd(ctx, msg); err != nil {
				h.reply(cl, model.WSErrorMessage{
					Type:      model.WSMessageTypeError,
					ProjectID: msg.ProjectID,
					Error: model.WSError{
						Code:    "COMMAND_FAILED",
						Message: client.ErrorMessage(err),
					},
				})
			}
		}
	}
}

// writer owns all writes to c. It stops when send is closed or quit fires.
func (h *Hub) writer(c *websocket.Conn, send <-chan []byte, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case message, ok := <-send:
			if !ok {
				c.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply sends v to a single client
func (h *Hub) reply(cl *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.watches[cl.Topic]; ok && w.clients[cl] {
		select {
		case cl.Send <- data:
		default:
		}
	}
}

// ReportTopic is the hub topic for a report export job
func ReportTopic(jobID string) string {
	return "report:" + jobID
}

// ProjectTopic is the hub topic for one owner's view of a project
func ProjectTopic(owner string, id model.ProjectID) string {
	return "project:" + owner + ":" + id.String()
}

// CollectionTopic is the hub topic for one owner's dashboard
func CollectionTopic(owner string) string {
	return "projects:" + owner
}
