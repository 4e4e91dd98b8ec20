package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/pricing-sync/internal/errors"
	"github.com/wfunc/pricing-sync/internal/models"
	"github.com/wfunc/pricing-sync/internal/service"
)

// ProfileHandler 命名方案处理器，写操作经过同步引擎逐行同步
type ProfileHandler struct {
	profiles service.ProfileService
	engine   SyncEngine
	logger   *zap.Logger
}

// NewProfileHandler 创建方案处理器
func NewProfileHandler(profiles service.ProfileService, engine SyncEngine, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, engine: engine, logger: logger}
}

// ProfileRequest 新增方案
type ProfileRequest struct {
	Name string                  `json:"name"`
	Rows []models.NamedPresetRow `json:"rows"`
}

// List 方案列表
func (h *ProfileHandler) List(c *gin.Context) {
	respondOK(c, h.profiles.Profiles())
}

// Get 单个方案
func (h *ProfileHandler) Get(c *gin.Context) {
	p, ok := h.profiles.Get(c.Param("id"))
	if !ok {
		respondError(c, errors.New(errors.ErrProfileNotFound, c.Param("id")))
		return
	}
	respondOK(c, p)
}

// Add 新增方案
func (h *ProfileHandler) Add(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	p, err := h.engine.AddProfile(c.Request.Context(), req.Name, req.Rows)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, p)
}

// Delete 删除方案
func (h *ProfileHandler) Delete(c *gin.Context) {
	if err := h.engine.DeleteProfile(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// Import 导入方案
func (h *ProfileHandler) Import(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		respondBindError(c, err)
		return
	}
	profiles, err := service.ParseProfiles(raw)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, h.engine.ImportProfiles(c.Request.Context(), profiles))
}
