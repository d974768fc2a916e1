package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/agent/session"
)

// =============================================================================
// 💬 AI Wingman Session Handler
// =============================================================================

// SessionHandler 处理冲突调解会话请求
type SessionHandler struct {
	sessions   *session.Manager
	runTimeout time.Duration
	logger     *zap.Logger
}

// SessionHandlerOption configures a SessionHandler.
type SessionHandlerOption func(*SessionHandler)

// WithSessionTimeout bounds every session run. Zero means no bound beyond
// the request context.
func WithSessionTimeout(d time.Duration) SessionHandlerOption {
	return func(h *SessionHandler) { h.runTimeout = d }
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions *session.Manager, logger *zap.Logger, opts ...SessionHandlerOption) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &SessionHandler{sessions: sessions, logger: logger.With(zap.String("component", "session_handler"))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the session routes on mux.
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/ai-wingman/conversation", h.HandleConversation)
	mux.HandleFunc("POST /api/v1/ai-wingman/conversation/legacy", h.HandleLegacyConversation)
}

func (h *SessionHandler) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.runTimeout > 0 {
		return context.WithTimeout(parent, h.runTimeout)
	}
	return context.WithCancel(parent)
}

// HandleConversation 运行会话并返回完整的结构化结果
func (h *SessionHandler) HandleConversation(w http.ResponseWriter, r *http.Request) {
	out, ok := h.process(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, out)
}

// HandleLegacyConversation 运行会话并返回四字段的旧版结果
func (h *SessionHandler) HandleLegacyConversation(w http.ResponseWriter, r *http.Request) {
	out, ok := h.process(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, out.Legacy())
}

func (h *SessionHandler) process(w http.ResponseWriter, r *http.Request) (*session.Interaction, bool) {
	var conv session.Conversation
	if err := DecodeJSONBody(w, r, &conv, h.logger); err != nil {
		return nil, false
	}

	ctx, cancel := h.runContext(r.Context())
	defer cancel()

	out, err := h.sessions.ProcessConversation(ctx, conv)
	if err != nil {
		WriteError(w, err, h.logger)
		return nil, false
	}
	return out, true
}
