// Package gateway exposes the game over websocket connections and a
// small REST API for room lifecycle.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yakan-hub/hukuwarai-hontai/fukuwarai"
	"github.com/yakan-hub/hukuwarai-hontai/internal/auth"
	"github.com/yakan-hub/hukuwarai-hontai/internal/catalog"
	"github.com/yakan-hub/hukuwarai-hontai/internal/codec"
	"github.com/yakan-hub/hukuwarai-hontai/internal/lobby"
	"github.com/yakan-hub/hukuwarai-hontai/internal/room"
	"github.com/yakan-hub/hukuwarai-hontai/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Restrict in production
	},
}

// Connection is one websocket client.
type Connection struct {
	ID        string
	AccountID uint64
	Nickname  string
	Conn      *websocket.Conn
	Send      chan []byte
	Gateway   *Gateway
	LastPing  time.Time

	// Current room association.
	RoomID  string
	Runtime *room.Runtime
}

// Gateway manages websocket connections.
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	nextConnID  uint64

	lobby *lobby.Lobby
	auth  auth.Service
}

func New(lby *lobby.Lobby, authService auth.Service) *Gateway {
	return &Gateway{
		connections: make(map[string]*Connection),
		lobby:       lby,
		auth:        authService,
	}
}

// HandleWebSocket authenticates the session token and upgrades the
// connection.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	accountID, nickname, ok := g.auth.ResolveSession(auth.BearerToken(r))
	if !ok {
		http.Error(w, "invalid session", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] Upgrade error: %v", err)
		return
	}

	g.mu.Lock()
	g.nextConnID++
	c := &Connection{
		ID:        fmt.Sprintf("conn_%d", g.nextConnID),
		AccountID: accountID,
		Nickname:  nickname,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		Gateway:   g,
		LastPing:  time.Now(),
	}
	g.connections[c.ID] = c
	g.mu.Unlock()

	log.Printf("[Gateway] Client connected: %s (account=%d), total: %d", c.ID, accountID, len(g.connections))

	go c.readPump()
	go c.writePump()
}

func (c *Connection) readPump() {
	defer func() {
		if c.Runtime != nil {
			c.Runtime.Detach(c.ID)
		}
		c.Gateway.removeConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(65536)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.LastPing = time.Now()
		return nil
	})

	for {
		var msg codec.ClientMessage
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Gateway] Read error: %v", err)
			}
			break
		}
		c.handleMessage(msg)
	}
}

func (c *Connection) handleMessage(msg codec.ClientMessage) {
	switch msg.Type {
	case codec.ClientAttach:
		c.handleAttach(msg)
	case codec.ClientPlace:
		c.handlePlace(msg)
	default:
		c.sendError(codec.CodeInvalidCandidate, "unknown message type "+msg.Type)
	}
}

func (c *Connection) handleAttach(msg codec.ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rt, err := c.Gateway.lobby.Runtime(ctx, msg.RoomID)
	if err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}

	if c.Runtime != nil && c.Runtime != rt {
		c.Runtime.Detach(c.ID)
	}
	send := func(data []byte) {
		select {
		case c.Send <- data:
		default:
			// Drop if buffer full; the client reconciles on next
			// snapshot.
		}
	}
	if err := rt.Attach(ctx, c.ID, send); err != nil {
		c.sendError(codec.CodeInternal, err.Error())
		return
	}
	c.RoomID = msg.RoomID
	c.Runtime = rt
	log.Printf("[Gateway] Account %d viewing room %s", c.AccountID, msg.RoomID)
}

func (c *Connection) handlePlace(msg codec.ClientMessage) {
	if c.Runtime == nil {
		c.sendError(codec.CodeNotFound, "not attached to a room")
		return
	}
	player, ok := c.Runtime.PlayerFor(c.AccountID)
	if !ok {
		c.sendError(codec.CodeUnauthorized, "no seat in this room")
		return
	}

	partType, ok := fukuwarai.ParsePartType(msg.PartType)
	if !ok {
		c.sendError(codec.CodeInvalidCandidate, "unknown part type "+msg.PartType)
		return
	}
	if err := catalog.Validate(msg.PartID, partType); err != nil {
		c.sendError(codec.CodeInvalidCandidate, err.Error())
		return
	}

	candidate := fukuwarai.Candidate{
		PartType: partType,
		PartID:   msg.PartID,
		X:        msg.X,
		Y:        msg.Y,
		Scale:    msg.Scale,
		Rotation: msg.Rotation,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Runtime.Place(ctx, player.ID, candidate); err != nil {
		c.sendError(errorCode(err), err.Error())
	}
}

func errorCode(err error) string {
	var invalid fukuwarai.InvalidCandidateError
	switch {
	case errors.Is(err, fukuwarai.ErrNotYourTurn):
		return codec.CodeNotYourTurn
	case errors.Is(err, fukuwarai.ErrCategoryFilled):
		return codec.CodeCategoryFilled
	case errors.Is(err, fukuwarai.ErrRoomNotPlaying), errors.Is(err, store.ErrRoomNotWaiting):
		return codec.CodeRoomNotPlaying
	case errors.As(err, &invalid):
		return codec.CodeInvalidCandidate
	case errors.Is(err, store.ErrNotFound):
		return codec.CodeNotFound
	default:
		return codec.CodeInternal
	}
}

func (c *Connection) sendError(code, msg string) {
	select {
	case c.Send <- codec.ErrorMessage(code, msg):
	default:
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.connections, c.ID)
	log.Printf("[Gateway] Client disconnected: %s, total: %d", c.ID, len(g.connections))
}
