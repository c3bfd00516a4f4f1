package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/factcheck"
	"github.com/factcheck-pro/backend/internal/middleware/ratelimit"
	"github.com/factcheck-pro/backend/internal/middleware/validation"
	"github.com/factcheck-pro/backend/pkg/logger"
)

const clientKeyLocal = "ws_client_key"

// Limiter admits or refuses one request for a client key.
type Limiter interface {
	Allow(key string) bool
}

type WebSocketHandler struct {
	service   *factcheck.Service
	validator *validation.Validator
	limiter   Limiter
}

// NewWebSocketHandler builds the websocket endpoint. Frames pass through the
// same validator and limiter as POST /api/fact-check; a nil limiter admits
// every frame.
func NewWebSocketHandler(service *factcheck.Service, validator *validation.Validator, limiter Limiter) *WebSocketHandler {
	if validator == nil {
		validator = validation.New(validation.Config{})
	}
	return &WebSocketHandler{
		service:   service,
		validator: validator,
		limiter:   limiter,
	}
}

// Upgrade admits websocket handshakes and records the client key the
// connection's frames are rate limited under.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals(clientKeyLocal, ratelimit.ClientKey(c))
	return c.Next()
}

// HandleConnection answers each {type, data} frame with one envelope frame.
// A status frame precedes every dispatched request. Checks in flight are
// cancelled when the client goes away.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan []byte)
	readerDone := make(chan struct{})
	defer func() {
		cancel()
		c.Close()
		<-readerDone
		logger.Info("WebSocket connection closed")
	}()

	key, _ := c.Locals(clientKeyLocal).(string)
	go func() {
		defer close(readerDone)
		defer close(frames)
		defer cancel()
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Error("Failed to read WebSocket message", zap.Error(err))
				}
				return
			}
			select {
			case frames <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for msg := range frames {
		if err := h.handleFrame(ctx, c, key, msg); err != nil {
			logger.Error("Failed to write WebSocket frame", zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHandler) handleFrame(ctx context.Context, c *websocket.Conn, key string, msg []byte) error {
	if h.limiter != nil && !h.limiter.Allow(key) {
		logger.Warn("Rate limit exceeded", zap.String("key", key), zap.String("path", "/ws/fact-check"))
		return c.WriteJSON(h.service.ClientErrorEnvelope(ratelimit.ErrorMessage))
	}

	msg, err := h.validator.FactCheck(msg, key)
	if err != nil {
		var rej *validation.Rejection
		if errors.As(err, &rej) {
			logger.Warn("Rejected WebSocket request", zap.String("error", rej.Message))
		}
		return c.WriteJSON(h.service.ClientErrorEnvelope(err.Error()))
	}

	req, err := DecodeRequest(msg)
	if err != nil {
		return c.WriteJSON(h.service.ClientErrorEnvelope(err.Error()))
	}
	if err := h.sendStatus(c, "Processing "+req.Type+" request..."); err != nil {
		return err
	}

	env, err := h.service.Check(ctx, req)
	if err != nil {
		env = h.service.ClientErrorEnvelope(err.Error())
	}
	return c.WriteJSON(env)
}

func (h *WebSocketHandler) sendStatus(c *websocket.Conn, content string) error {
	msg := map[string]interface{}{
		"type":    "status",
		"content": content,
	}

	return c.WriteJSON(msg)
}
