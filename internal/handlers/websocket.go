package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/atharvakonge/investment-ledger/internal/models"
	"github.com/atharvakonge/investment-ledger/internal/money"
)

const (
	writeWait    = 5 * time.Second
	clientBuffer = 16
)

// FundingUpdate is pushed to feed subscribers after an opportunity changes.
type FundingUpdate struct {
	OpportunityID   int64        `json:"opportunity_id"`
	AmountRaised    money.Amount `json:"amount_raised"`
	InvestorCount   int          `json:"investor_count"`
	FundingProgress money.Amount `json:"funding_progress"`
	Timestamp       time.Time    `json:"timestamp"`
}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the feed carries no private data
	},
}

type feedClient struct {
	conn *websocket.Conn
	send chan FundingUpdate
}

// Hub fans committed opportunity totals out to websocket clients. Delivery is
// best effort: a full queue drops the update and a slow client is disconnected.
type Hub struct {
	updates chan FundingUpdate
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	now     func() time.Time
}

// NewHub creates a hub that queues up to buffer updates.
func NewHub(buffer int) *Hub {
	return &Hub{
		updates: make(chan FundingUpdate, buffer),
		stopCh:  make(chan struct{}),
		clients: make(map[*feedClient]struct{}),
		now:     time.Now,
	}
}

// Start starts the broadcast loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
	slog.Info("funding feed started")
}

// Stop ends the broadcast loop and disconnects every client.
func (h *Hub) Stop() {
	close(h.stopCh)
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
	slog.Info("funding feed stopped")
}

// OpportunityChanged queues an update without blocking the caller.
func (h *Hub) OpportunityChanged(opp models.Opportunity) {
	update := FundingUpdate{
		OpportunityID:   opp.ID,
		AmountRaised:    money.Of(opp.AmountRaised),
		InvestorCount:   opp.InvestorCount,
		FundingProgress: money.Of(opp.FundingProgress()),
		Timestamp:       h.now(),
	}
	select {
	case h.updates <- update:
	default:
		slog.Warn("funding feed queue full, dropping update", "opportunity_id", opp.ID)
	}
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.stopCh:
			return
		case update := <-h.updates:
			h.broadcast(update)
		}
	}
}

func (h *Hub) broadcast(update FundingUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- update:
		default:
			slog.Warn("funding feed client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
			h.dropLocked(c)
		}
	}
}

// dropLocked must be called with mu held.
func (h *Hub) dropLocked(c *feedClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWebSocket handles GET /ws/opportunities
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "websocket upgrade failed", "error", err)
		return
	}

	client := &feedClient{conn: conn, send: make(chan FundingUpdate, clientBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	slog.InfoContext(c.Request.Context(), "funding feed client connected", "remote", conn.RemoteAddr().String())

	go h.writePump(client)

	// Inbound messages are ignored; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(client)
}

func (h *Hub) writePump(c *feedClient) {
	defer c.conn.Close()
	for update := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(update); err != nil {
			slog.Debug("funding feed write failed", "error", err)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
