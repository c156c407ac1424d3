package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/safetycore/api"
	"github.com/BaSui01/safetycore/orchestrator"
	"github.com/BaSui01/safetycore/types"
)

// =============================================================================
// 🛡️ 护栏 Handler
// =============================================================================

// SafetyHandler 把 HTTP 请求转交给护栏编排器
type SafetyHandler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

// NewSafetyHandler 创建护栏处理器
func NewSafetyHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *SafetyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SafetyHandler{
		orch:   orch,
		logger: logger.With(zap.String("component", "safety_handler")),
	}
}

// Register 在 mux 上注册全部护栏路由
func (h *SafetyHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/inbound", h.HandleInbound)
	mux.HandleFunc("POST /v1/outbound", h.HandleOutbound)
	mux.HandleFunc("POST /v1/report", h.HandleReport)
	mux.HandleFunc("GET /v1/config", h.HandleGetConfig)
	mux.HandleFunc("PUT /v1/config", h.HandleUpdateConfig)
	mux.HandleFunc("GET /v1/sessions/{id}", h.HandleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.HandleDeleteSession)
}

// decode 校验 Content-Type 并解码请求体，失败时已写出错误响应
func (h *SafetyHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := ValidateContentType(r); err != nil {
		WriteError(w, r, err, nil, h.logger)
		return false
	}
	if err := DecodeJSONBody(r, dst); err != nil {
		WriteError(w, r, err, nil, h.logger)
		return false
	}
	return true
}

// HandleInbound 处理 POST /v1/inbound
// 被拦截的消息仍返回 200，只有缺少会话或文本时返回 400 并附带拦截决策
func (h *SafetyHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.InboundRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	if req.SessionID != "" {
		ctx = types.WithSessionID(ctx, req.SessionID)
	}

	decision, err := h.orch.ProcessInboundMessage(ctx, &req)
	if err != nil {
		WriteError(w, r, err, decision, h.logger)
		return
	}
	WriteSuccess(w, r, decision)
}

// HandleOutbound 处理 POST /v1/outbound
func (h *SafetyHandler) HandleOutbound(w http.ResponseWriter, r *http.Request) {
	var req api.OutboundRequest
	if !h.decode(w, r, &req) {
		return
	}
	WriteSuccess(w, r, h.orch.ValidateOutboundResponse(r.Context(), req.AIResponse, req.UserMessage))
}

// HandleReport 处理 POST /v1/report
func (h *SafetyHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	var req api.ReportRequest
	if !h.decode(w, r, &req) {
		return
	}
	WriteSuccess(w, r, h.orch.GetSafetyReport(r.Context(), req.Text))
}

// HandleGetConfig 处理 GET /v1/config
func (h *SafetyHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.orch.GetConfig())
}

// HandleUpdateConfig 处理 PUT /v1/config，返回更新后的完整配置
func (h *SafetyHandler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req api.ConfigUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req) == 0 {
		WriteError(w, r, types.NewError(types.ErrInvalidConfig, "no config keys provided"), nil, h.logger)
		return
	}
	if err := h.orch.UpdateConfig(req); err != nil {
		WriteError(w, r, err, nil, h.logger)
		return
	}
	h.logger.Info("runtime config updated via API",
		zap.Int("keys", len(req)),
		zap.String("request_id", requestID(r)))
	WriteSuccess(w, r, h.orch.GetConfig())
}

// HandleGetSession 处理 GET /v1/sessions/{id}
func (h *SafetyHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	session, ok := h.orch.Sessions().Peek(id)
	if !ok {
		WriteError(w, r, types.NewError(types.ErrSessionNotFound, "session not found: "+id), nil, h.logger)
		return
	}
	WriteSuccess(w, r, session.Summary())
}

// HandleDeleteSession 处理 DELETE /v1/sessions/{id}
func (h *SafetyHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	_, ok := h.orch.Sessions().Peek(id)
	if ok {
		h.orch.Sessions().Remove(id)
	}
	WriteSuccess(w, r, api.SessionDeleted{SessionID: id, Removed: ok})
}
