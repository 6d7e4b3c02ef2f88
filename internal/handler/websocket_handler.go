// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hamlink/internal/config"
	"hamlink/internal/model"
	"hamlink/internal/service"
	"hamlink/internal/utils"
	"hamlink/pkg/driver"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// WebSocketHandler streams rotator positions and device events
type WebSocketHandler struct {
	upgrader       websocket.Upgrader
	connections    *ConnectionManager
	deviceService  *service.DeviceService
	eventBus       *EventBus
	streamInterval time.Duration
	logger         *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	deviceService *service.DeviceService,
	eventBus *EventBus,
	cfg *config.Config,
	logger *zap.Logger,
) *WebSocketHandler {
	interval := cfg.Device.PositionStreamInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.Security.AllowedOrigins),
		},
		connections:    NewConnectionManager(),
		deviceService:  deviceService,
		eventBus:       eventBus,
		streamInterval: interval,
		logger:         utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// originChecker allows requests without an Origin header and origins on
// the allow list. "*" allows everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/sessions/:id/position", h.HandlePositionStream)
	router.GET("/events", h.HandleEventConnection)
	router.GET("/stats", func(c *gin.Context) {
		utils.SuccessResponse(c, http.StatusOK, "Connection statistics", h.GetConnectionStats())
	})
}

// Run forwards bus events to event clients until ctx is cancelled
func (h *WebSocketHandler) Run(ctx context.Context) {
	events := h.eventBus.Subscribe(AllEvents)
	defer h.eventBus.Unsubscribe(events)

	for {
		select {
		case <-ctx.Done():
			h.connections.CloseAll()
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.BroadcastEvent(event)
		}
	}
}

// HandlePositionStream polls a rotator session and streams its position
func (h *WebSocketHandler) HandlePositionStream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID", err)
		return
	}

	device, err := h.deviceService.GetSession(id)
	if err != nil {
		utils.DriverErrorResponse(c, "Session not found", err)
		return
	}
	if !device.HasCapability(model.CapabilityGetPosition) {
		utils.DriverErrorResponse(c, "Session cannot report a position",
			fmt.Errorf("%s %s: %w", device.Brand, device.Model, driver.ErrNotSupported))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	sessionID := id.String()
	client := newClient(uuid.New().String(), conn, ClientTypePosition)
	client.SessionID = &sessionID
	client.UserAgent = c.Request.UserAgent()
	client.RemoteAddr = c.Request.RemoteAddr

	h.connections.Register(client)
	h.logger.Info("Position stream client connected",
		zap.String("client_id", client.ID),
		zap.String("session_id", sessionID),
		zap.Duration("interval", h.streamInterval),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
	go h.streamPosition(client, id)
}

// HandleEventConnection handles general event WebSocket connections
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := newClient(uuid.New().String(), conn, ClientTypeEvents)
	client.UserAgent = c.Request.UserAgent()
	client.RemoteAddr = c.Request.RemoteAddr
	for _, topic := range c.QueryArray("topic") {
		client.Subscribe(topic)
	}

	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.Strings("topics", client.Subscriptions()),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// streamPosition runs GET_POSITION every interval. Each poll refreshes one
// axis, so a full refresh takes two intervals.
func (h *WebSocketHandler) streamPosition(client *Client, id uuid.UUID) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-client.Done()
		cancel()
	}()

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.Done():
			return
		case <-ticker.C:
			resp, err := h.deviceService.Execute(ctx, id, model.OperationTypeGetPosition, nil)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				h.sendError(client, err.Error())
				if errors.Is(err, driver.ErrSessionNotFound) {
					h.connections.Unregister(client)
					return
				}
				continue
			}
			h.sendMessage(client, &WebSocketMessage{
				Type:      "position",
				Data:      resp.Result,
				Timestamp: time.Now(),
			})
		}
	}
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			return
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "invalid message")
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case <-client.Done():
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			client.Connection.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				h.connections.Unregister(client)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.connections.Unregister(client)
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe", "unsubscribe":
		topic, ok := messageTopic(message)
		if !ok {
			h.sendError(client, "topic is required")
			return
		}
		if message.Type == "subscribe" {
			client.Subscribe(topic)
		} else {
			client.Unsubscribe(topic)
		}
		h.sendMessage(client, &WebSocketMessage{
			Type:      message.Type + "d",
			Data:      map[string]interface{}{"topic": topic},
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	case "operation":
		h.handleOperation(client, message)
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	default:
		h.sendError(client, fmt.Sprintf("unknown message type: %s", message.Type))
	}
}

func messageTopic(message *WebSocketMessage) (string, bool) {
	data, ok := message.Data.(map[string]interface{})
	if !ok {
		return "", false
	}
	topic, ok := data["topic"].(string)
	return topic, ok && topic != ""
}

// handleOperation runs an operation on the client's session. Only
// position clients are bound to a session.
func (h *WebSocketHandler) handleOperation(client *Client, message *WebSocketMessage) {
	if client.SessionID == nil {
		h.sendError(client, "operation only available on session streams")
		return
	}

	data, ok := message.Data.(map[string]interface{})
	if !ok {
		h.sendError(client, "invalid operation data")
		return
	}
	opType, _ := data["operation_type"].(string)
	if opType == "" {
		h.sendError(client, "operation_type is required")
		return
	}
	args, _ := data["operation_data"].(map[string]interface{})

	id := uuid.MustParse(*client.SessionID)
	go func() {
		resp, err := h.deviceService.Execute(context.Background(), id, model.OperationType(strings.ToUpper(opType)), args)

		reply := map[string]interface{}{
			"operation_type": strings.ToUpper(opType),
			"success":        err == nil,
		}
		if err != nil {
			reply["error"] = err.Error()
		} else {
			reply["result"] = resp.Result
		}
		h.sendMessage(client, &WebSocketMessage{
			Type:      "operation_result",
			Data:      reply,
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	}()
}

// sendMessage queues a message for a client, dropping it when the client
// is slow or gone
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}
	h.send(client, messageBytes)
}

func (h *WebSocketHandler) send(client *Client, messageBytes []byte) {
	select {
	case <-client.Done():
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "error",
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
	})
}

// BroadcastEvent sends a device event to the event clients subscribed to
// its type or session
func (h *WebSocketHandler) BroadcastEvent(event model.DeviceEvent) {
	messageBytes, err := json.Marshal(&WebSocketMessage{
		Type:      "device_event",
		Data:      event,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	for _, client := range h.connections.GetEventClients() {
		if client.Wants(string(event.EventType), event.SessionID) {
			h.send(client, messageBytes)
		}
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
