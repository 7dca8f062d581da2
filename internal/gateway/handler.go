package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Handler serves the HTTP and websocket surface of the core.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes builds the chi router for the service.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(10 * time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/chats/{chatID}/messages", h.handleSend)
		r.Get("/chats/{chatID}/ws", h.handleStream)
		r.Post("/messages/{messageID}/execute", h.handleExecutePlan)
	})
	return r
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	req, ok := decodeSendRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.service.RunTurn(r.Context(), chatID, req, nil)
	if err != nil {
		h.logger.Warn("turn failed", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not process message")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// wsEnvelope is one websocket frame. Kind "chunk" carries a raw stream
// chunk, which itself may be plain text or the JSON image event; kind
// "result" carries the final turn response and closes the stream.
type wsEnvelope struct {
	Kind   string        `json:"kind"`
	Chunk  string        `json:"chunk,omitempty"`
	Result *TurnResponse `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// handleStream upgrades to a websocket, reads one send request, and
// streams the turn's chunks back as they arrive.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "turn complete")

	ctx := r.Context()

	var req SendRequest
	if err := readWSJSON(ctx, conn, &req); err != nil {
		h.logger.Warn("websocket request read failed", zap.String("chat_id", chatID), zap.Error(err))
		conn.Close(websocket.StatusInvalidFramePayloadData, "bad request")
		return
	}

	sink := func(chunk string) {
		if writeErr := writeWSJSON(ctx, conn, wsEnvelope{Kind: "chunk", Chunk: chunk}); writeErr != nil {
			h.logger.Debug("websocket chunk write failed", zap.Error(writeErr))
		}
	}

	resp, err := h.service.RunTurn(ctx, chatID, &req, sink)
	if err != nil {
		h.logger.Warn("streamed turn failed", zap.String("chat_id", chatID), zap.Error(err))
		_ = writeWSJSON(ctx, conn, wsEnvelope{Kind: "error", Error: "could not process message"})
		return
	}
	if err := writeWSJSON(ctx, conn, wsEnvelope{Kind: "result", Result: resp}); err != nil {
		h.logger.Debug("websocket result write failed", zap.Error(err))
	}
}

func (h *Handler) handleExecutePlan(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	req, ok := decodeSendRequest(w, r)
	if !ok {
		return
	}

	plan, err := h.service.ExecutePlan(r.Context(), messageID, req, nil)
	if err != nil {
		h.logger.Warn("plan execution failed", zap.String("message_id", messageID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not execute plan")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func decodeSendRequest(w http.ResponseWriter, r *http.Request) (*SendRequest, bool) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return nil, false
	}
	if req.Prompt == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "prompt and user_id are required")
		return nil, false
	}
	return &req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readWSJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeWSJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
