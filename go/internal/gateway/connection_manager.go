package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/skirmish/go/internal/events"
	"github.com/mcdev12/skirmish/go/internal/matchmaking"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/mcdev12/skirmish/go/internal/world"
	"github.com/rs/zerolog/log"
)

// ClientHandler receives what connections read and learns when a participant
// has no connection left.
type ClientHandler interface {
	HandleMessage(ctx context.Context, id models.ParticipantID, msg ClientMessage)
	HandleClosed(id models.ParticipantID)
}

// ConnectionManager manages websocket connections keyed by participant. It is
// the notifier and world commander of the matchmaking engine.
type ConnectionManager struct {
	connections map[models.ParticipantID]map[*Connection]struct{}
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  ClientHandler

	outbound chan outboundMessage
}

// Connection represents a websocket connection to a client
type Connection struct {
	ID            string
	ParticipantID models.ParticipantID
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager
	ConnectedAt   time.Time
}

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	OutboundBuffer  int
	CheckOrigin     func(r *http.Request) bool
}

// recipients == nil means every connection.
type outboundMessage struct {
	recipients []models.ParticipantID
	data       []byte
	label      string
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		OutboundBuffer:  1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// OriginChecker allows the listed origins. An empty list or "*" allows any.
func OriginChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// NewConnectionManager creates a new websocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	if config.OutboundBuffer <= 0 {
		config.OutboundBuffer = 1000
	}
	return &ConnectionManager{
		connections: make(map[models.ParticipantID]map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:   config,
		outbound: make(chan outboundMessage, config.OutboundBuffer),
	}
}

// SetHandler installs the handler for client messages. Must be called before
// the first connection is upgraded.
func (cm *ConnectionManager) SetHandler(h ClientHandler) {
	cm.handler = h
}

// Start delivers queued outbound messages until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case msg := <-cm.outbound:
			cm.deliver(msg)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to websocket for participant id
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, id models.ParticipantID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:            uuid.New().String(),
		ParticipantID: id,
		Conn:          conn,
		Send:          make(chan []byte, cm.config.SendBufferSize),
		Manager:       cm,
		ConnectedAt:   time.Now(),
	}
	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("participant_id", string(id)).
		Msg("websocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.connections[conn.ParticipantID] == nil {
		cm.connections[conn.ParticipantID] = make(map[*Connection]struct{})
	}
	cm.connections[conn.ParticipantID][conn] = struct{}{}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("participant_id", string(conn.ParticipantID)).
		Int("participant_connections", len(cm.connections[conn.ParticipantID])).
		Msg("connection registered")
}

// unregisterConnection removes conn. When it was the participant's last
// connection the handler is told the participant is gone.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	set, ok := cm.connections[conn.ParticipantID]
	if !ok {
		cm.mu.Unlock()
		return
	}
	if _, ok := set[conn]; !ok {
		cm.mu.Unlock()
		return
	}
	delete(set, conn)
	close(conn.Send)
	last := len(set) == 0
	if last {
		delete(cm.connections, conn.ParticipantID)
	}
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("participant_id", string(conn.ParticipantID)).
		Bool("last", last).
		Msg("connection unregistered")

	if last && cm.handler != nil {
		cm.handler.HandleClosed(conn.ParticipantID)
	}
}

// Connected reports whether id has at least one open connection.
func (cm *ConnectionManager) Connected(id models.ParticipantID) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections[id]) > 0
}

// Notify implements matchmaking.Notifier.
func (cm *ConnectionManager) Notify(recipients []models.ParticipantID, key string, params matchmaking.Params) {
	cm.enqueue(recipients, ServerMessage{Type: ServerMessageNotify, Key: key, Params: params})
}

// Command implements world.Commander.
func (cm *ConnectionManager) Command(id models.ParticipantID, cmd world.Command) {
	cm.enqueue([]models.ParticipantID{id}, commandMessage(cmd))
}

// SendError reports a failed request to id.
func (cm *ConnectionManager) SendError(id models.ParticipantID, key string, params map[string]any) {
	cm.enqueue([]models.ParticipantID{id}, ServerMessage{Type: ServerMessageError, Key: key, Params: params})
}

// Publish broadcasts a lifecycle event to every connected client.
func (cm *ConnectionManager) Publish(_ context.Context, event events.Event) error {
	cm.enqueue(nil, ServerMessage{Type: ServerMessageEvent, Event: &event})
	return nil
}

// Close is part of relay.Publisher. Connections are closed by Shutdown.
func (cm *ConnectionManager) Close() error { return nil }

// enqueue never blocks: callers hold queue and match locks.
func (cm *ConnectionManager) enqueue(recipients []models.ParticipantID, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.Type)).Msg("failed to marshal server message")
		return
	}
	if recipients != nil {
		recipients = append([]models.ParticipantID(nil), recipients...)
	}
	label := string(msg.Type)
	if msg.Key != "" {
		label = msg.Key
	}

	select {
	case cm.outbound <- outboundMessage{recipients: recipients, data: data, label: label}:
	default:
		log.Warn().Str("message", label).Int("recipients", len(recipients)).Msg("outbound channel full, dropping message")
	}
}

func (cm *ConnectionManager) deliver(msg outboundMessage) {
	var slow []*Connection
	delivered := 0

	// Sends happen under the read lock so unregisterConnection cannot close a
	// Send channel in between.
	cm.mu.RLock()
	send := func(conn *Connection) {
		select {
		case conn.Send <- msg.data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	if msg.recipients == nil {
		for _, set := range cm.connections {
			for conn := range set {
				send(conn)
			}
		}
	} else {
		for _, id := range msg.recipients {
			set, ok := cm.connections[id]
			if !ok {
				log.Debug().Str("participant_id", string(id)).Str("message", msg.label).Msg("participant not connected, message dropped")
				continue
			}
			for conn := range set {
				send(conn)
			}
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("participant_id", string(conn.ParticipantID)).
			Msg("connection send buffer full, closing connection")
		// readPump notices the closed socket and unregisters.
		conn.Conn.Close()
	}

	log.Debug().
		Str("message", msg.label).
		Int("connections", delivered).
		Msg("message delivered")
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{Participants: len(cm.connections)}
	for _, set := range cm.connections {
		stats.Connections += len(set)
	}
	return stats
}

// ConnectionStats summarises open websocket connections.
type ConnectionStats struct {
	Connections  int `json:"total_connections"`
	Participants int `json:"participants"`
}

// Shutdown closes every connection.
func (cm *ConnectionManager) Shutdown() {
	cm.mu.RLock()
	var all []*Connection
	for _, set := range cm.connections {
		for conn := range set {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		conn.Conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second),
		)
		conn.Conn.Close()
	}
	log.Info().Int("connections", len(all)).Msg("websocket connections closed")
}

// writePump handles sending messages to the websocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the websocket connection. It owns
// unregistration.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

func (c *Connection) handleClientMessage(message []byte) {
	msg, err := ParseClientMessage(message)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("participant_id", string(c.ParticipantID)).
			Msg("rejected client message")
		c.Manager.SendError(c.ParticipantID, ErrorKeyInvalidMessage, map[string]any{"reason": err.Error()})
		return
	}
	if c.Manager.handler == nil {
		return
	}
	c.Manager.handler.HandleMessage(context.Background(), c.ParticipantID, msg)
}
