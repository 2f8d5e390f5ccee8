package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/chat"
	"github.com/veritas-audit/backend/internal/metrics"
	"github.com/veritas-audit/backend/pkg/logger"
)

type WebSocketHandler struct {
	svc *chat.Service
}

func NewWebSocketHandler(svc *chat.Service) *WebSocketHandler {
	return &WebSocketHandler{svc: svc}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			Content   string `json:"content"`
			CIID      string `json:"ci_id"`
			SessionID string `json:"session_id"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "chat" {
			continue
		}
		if msg.Content == "" || msg.CIID == "" {
			h.sendError(c, "ci_id and content are required")
			continue
		}

		logger.Info("Processing WebSocket chat message",
			zap.String("ci_id", msg.CIID),
			zap.String("session_id", msg.SessionID),
		)

		err = h.streamResponse(c, msg.CIID, msg.SessionID, msg.Content)
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			if errors.Is(err, chat.ErrNoTools) {
				h.sendError(c, "No tool data available for this CI")
			} else {
				h.sendError(c, "Failed to generate response")
			}
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, ciID, sessionID, content string) error {
	ctx := context.Background()

	req := &chat.Request{
		SessionID: sessionID,
		CIID:      ciID,
		Message:   content,
	}

	h.sendFrame(c, "status", "Analyzing available tool data...")

	resp, err := h.svc.Respond(ctx, req, func(step string) {
		h.sendFrame(c, "status", step)
	})
	if err != nil {
		return err
	}

	words := strings.Fields(resp.Response)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}
		if err := h.sendFrame(c, "chunk", chunk); err != nil {
			return err
		}
	}

	metrics.ChatMessages.WithLabelValues("websocket").Inc()

	return c.WriteJSON(map[string]interface{}{
		"type":           "complete",
		"session_id":     resp.SessionID,
		"tools_used":     resp.ToolsUsed,
		"thinking_steps": resp.ThinkingSteps,
	})
}

func (h *WebSocketHandler) sendFrame(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	err := c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
	if err != nil {
		logger.Error("Failed to send error frame", zap.Error(err))
	}
}
