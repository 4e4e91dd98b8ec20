package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SyncHandler 同步控制处理器
type SyncHandler struct {
	engine SyncEngine
	logger *zap.Logger
}

// NewSyncHandler 创建同步处理器
func NewSyncHandler(engine SyncEngine, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{engine: engine, logger: logger}
}

// SyncCodeRequest 设置同步码
type SyncCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// VisibilityRequest 页面可见性变化
type VisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// VisibilityResponse 可见性处理结果
type VisibilityResponse struct {
	Refetched bool `json:"refetched"`
}

// Status 同步状态
func (h *SyncHandler) Status(c *gin.Context) {
	respondOK(c, h.engine.Status())
}

// Save 立即推送
func (h *SyncHandler) Save(c *gin.Context) {
	if err := h.engine.SaveNow(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, h.engine.Status())
}

// SetCode 设置同步码并加载远端数据
func (h *SyncHandler) SetCode(c *gin.Context) {
	var req SyncCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.engine.LoadBySyncCode(c.Request.Context(), req.Code); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, h.engine.Status())
}

// ClearCode 清除同步码，回到默认键
func (h *SyncHandler) ClearCode(c *gin.Context) {
	if err := h.engine.ClearSyncCode(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, h.engine.Status())
}

// Visibility 页面可见性变化，可见时可能重新拉取，隐藏时推送待发送内容
func (h *SyncHandler) Visibility(c *gin.Context) {
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ctx := c.Request.Context()
	if !*req.Visible {
		if err := h.engine.OnHide(ctx); err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, VisibilityResponse{})
		return
	}

	refetched, err := h.engine.OnVisible(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, VisibilityResponse{Refetched: refetched})
}

// DeleteCloud 删除当前同步码的云端数据，本地数据保留
func (h *SyncHandler) DeleteCloud(c *gin.Context) {
	if err := h.engine.DeleteCloudStorage(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
