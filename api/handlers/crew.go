package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/agent/crews"
	"github.com/shivanandmn/wingman/agent/declarative"
	"github.com/shivanandmn/wingman/api"
	"github.com/shivanandmn/wingman/types"
)

// ContentCrewID is the crew run by POST /api/v1/agent/content.
const ContentCrewID = "content_creation_crew"

// =============================================================================
// 🤝 Crew Handler
// =============================================================================

// CrewHandler 处理 crew 的查询、运行、默认上下文与定义重载
type CrewHandler struct {
	manager        *crews.Manager
	definitionsDir string
	runTimeout     time.Duration
	logger         *zap.Logger
}

// CrewHandlerOption configures a CrewHandler.
type CrewHandlerOption func(*CrewHandler)

// WithDefinitionsDir sets the directory POST /api/v1/definitions/reload reads.
func WithDefinitionsDir(dir string) CrewHandlerOption {
	return func(h *CrewHandler) { h.definitionsDir = dir }
}

// WithRunTimeout bounds every run started over HTTP. Zero means no bound
// beyond the request context.
func WithRunTimeout(d time.Duration) CrewHandlerOption {
	return func(h *CrewHandler) { h.runTimeout = d }
}

// NewCrewHandler 创建 crew 处理器
func NewCrewHandler(manager *crews.Manager, logger *zap.Logger, opts ...CrewHandlerOption) *CrewHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &CrewHandler{manager: manager, logger: logger.With(zap.String("component", "crew_handler"))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the crew routes on mux.
func (h *CrewHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/crews", h.HandleList)
	mux.HandleFunc("GET /api/v1/crews/{id}", h.HandleDescribe)
	mux.HandleFunc("POST /api/v1/crews/{id}/run", h.HandleRun)
	mux.HandleFunc("GET /api/v1/crews/{id}/stream", h.HandleStream)
	mux.HandleFunc("POST /api/v1/agent/content", h.HandleContent)
	mux.HandleFunc("GET /api/v1/context", h.HandleGetContext)
	mux.HandleFunc("PUT /api/v1/context", h.HandleUpdateContext)
	mux.HandleFunc("DELETE /api/v1/context", h.HandleResetContext)
	mux.HandleFunc("POST /api/v1/definitions/reload", h.HandleReload)
}

func (h *CrewHandler) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.runTimeout > 0 {
		return context.WithTimeout(parent, h.runTimeout)
	}
	return context.WithCancel(parent)
}

// HandleList 列出当前定义中的 crew
func (h *CrewHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	defs := h.manager.Crews()
	out := make([]api.CrewSummary, 0, len(defs))
	for _, c := range defs {
		out = append(out, api.CrewSummary{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Mode:        c.Process,
			Agents:      c.Agents,
			Tasks:       c.Tasks,
			MaxRPM:      c.MaxRPM,
		})
	}
	WriteSuccess(w, out)
}

// HandleDescribe 返回 crew 解析后的执行计划
func (h *CrewHandler) HandleDescribe(w http.ResponseWriter, r *http.Request) {
	plan, err := h.manager.Describe(r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, describe(plan))
}

func describe(plan *crews.Plan) api.CrewDescription {
	desc := api.CrewDescription{Plan: plan, Placeholders: []string{}}
	seen := make(map[string]bool)
	for _, u := range plan.Units {
		for _, p := range u.Placeholders() {
			if !seen[p] {
				seen[p] = true
				desc.Placeholders = append(desc.Placeholders, p)
			}
		}
	}
	for _, id := range plan.AgentIDs {
		if a, ok := plan.Member(id); ok {
			desc.AgentDefs = append(desc.AgentDefs, a)
		}
	}
	return desc
}

// HandleRun 同步运行 crew。无论 crew 状态如何都返回 200 与完整结果；
// 未知 crew 返回 404，运行被取消或超时返回 408 并附带部分结果。
func (h *CrewHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req api.RunRequest
	if err := decodeOptionalJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	ctx, cancel := h.runContext(r.Context())
	defer cancel()

	var opts []crews.RunOption
	if req.Structured {
		opts = append(opts, crews.WithStructuredOutput())
	}
	res, err := h.manager.Run(ctx, r.PathValue("id"), req.Context, opts...)
	if err != nil {
		if res != nil {
			writeErrorWithData(w, err, res, h.logger)
		} else {
			WriteError(w, err, h.logger)
		}
		return
	}
	WriteSuccess(w, res)
}

// HandleContent 以 topic 运行内容创作 crew，返回最终输出
func (h *CrewHandler) HandleContent(w http.ResponseWriter, r *http.Request) {
	var req api.ContentRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "topic is required", h.logger)
		return
	}

	ctx, cancel := h.runContext(r.Context())
	defer cancel()

	res, err := h.manager.Run(ctx, ContentCrewID, map[string]string{"topic": topic})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if res.Status != crews.CrewSucceeded {
		WriteError(w, types.Errorf(types.ErrCapability, "content crew %s", res.Status), h.logger)
		return
	}
	// The article is the last task's output; an optional final task that
	// failed leaves nothing to return.
	if n := len(res.Tasks); n == 0 || res.Tasks[n-1].Status != crews.TaskSucceeded {
		WriteError(w, types.NewError(types.ErrCapability, "content crew produced no final output"), h.logger)
		return
	}
	WriteSuccess(w, api.ContentResponse{Result: res.Summary.FinalOutput, RunID: res.RunID})
}

// HandleGetContext 返回进程级默认上下文
func (h *CrewHandler) HandleGetContext(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.manager.DefaultContext())
}

// HandleUpdateContext 将请求体合并进默认上下文
func (h *CrewHandler) HandleUpdateContext(w http.ResponseWriter, r *http.Request) {
	var partial map[string]string
	if err := DecodeJSONBody(w, r, &partial, h.logger); err != nil {
		return
	}
	h.manager.UpdateDefaultContext(partial)
	WriteSuccess(w, h.manager.DefaultContext())
}

// HandleResetContext 清空默认上下文
func (h *CrewHandler) HandleResetContext(w http.ResponseWriter, r *http.Request) {
	h.manager.ResetDefaultContext()
	WriteSuccess(w, map[string]string{})
}

// HandleReload 从定义目录重新加载；失败时保留旧定义并返回 CONFIG_ERROR
func (h *CrewHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if h.definitionsDir == "" {
		WriteErrorMessage(w, http.StatusConflict, types.ErrInvalidRequest, "no definitions directory configured", h.logger)
		return
	}
	if err := h.manager.ReloadDir(h.definitionsDir); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, reloadResponse(h.manager.Definitions()))
}

func reloadResponse(snap *declarative.Snapshot) api.ReloadResponse {
	return api.ReloadResponse{
		Version:  snap.Version(),
		Checksum: snap.Checksum(),
		Crews:    snap.CrewIDs(),
	}
}
