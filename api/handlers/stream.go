package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/agent/crews"
	"github.com/shivanandmn/wingman/api"
	"github.com/shivanandmn/wingman/types"
)

// streamConn serializes writes; a websocket connection allows one writer.
type streamConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	failed bool
}

func (s *streamConn) send(ctx context.Context, msg api.StreamMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return fmt.Errorf("stream closed")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal stream message: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.failed = true
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// HandleStream 升级为 WebSocket 运行 crew。
// 客户端先发送一个 RunRequest，随后服务端推送每个单元的状态事件，
// 最后发送 result（或 error）消息并正常关闭连接。
// 客户端关闭连接或写失败都视为客户端离开，运行随之取消。
func (h *CrewHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	crewID := r.PathValue("id")
	// Unknown crews are rejected before the upgrade so clients get a plain 404.
	if _, err := h.manager.Describe(crewID); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	readCtx, readCancel := h.runContext(r.Context())
	_, data, err := conn.Read(readCtx)
	readCancel()
	if err != nil {
		h.logger.Debug("stream closed before run request", zap.Error(err))
		return
	}
	var req api.RunRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			_ = conn.Close(websocket.StatusUnsupportedData, "invalid run request")
			return
		}
	}

	// CloseRead closes the connection once its context ends, so it must
	// outlive the run timeout for the final message to be delivered.
	ctx, cancel := h.runContext(conn.CloseRead(r.Context()))
	defer cancel()

	// Events are written with the request context; the run context may
	// already be done when cancellation events arrive.
	sc := &streamConn{conn: conn}
	observer := func(ev crews.UnitEvent) {
		if err := sc.send(r.Context(), api.StreamMessage{Type: api.StreamEvent, Event: &ev}); err != nil {
			h.logger.Debug("stream client gone, cancelling run", zap.String("run_id", ev.RunID), zap.Error(err))
			cancel()
		}
	}

	opts := []crews.RunOption{crews.WithObserver(observer)}
	if req.Structured {
		opts = append(opts, crews.WithStructuredOutput())
	}
	res, runErr := h.manager.Run(ctx, crewID, req.Context, opts...)

	final := api.StreamMessage{Type: api.StreamResult, Result: res}
	if runErr != nil {
		final = api.StreamMessage{
			Type:   api.StreamError,
			Result: res,
			Error: &api.StreamErrorDetail{
				Code:    string(types.GetErrorCode(runErr)),
				Message: runErr.Error(),
			},
		}
	}
	if err := sc.send(r.Context(), final); err != nil {
		h.logger.Debug("failed to deliver stream result", zap.Error(err))
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "run complete")
}
