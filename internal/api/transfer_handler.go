package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/pricing-sync/internal/service"
)

// TransferHandler 导入导出处理器
type TransferHandler struct {
	services *service.Services
	engine   SyncEngine
	logger   *zap.Logger
}

// NewTransferHandler 创建导入导出处理器
func NewTransferHandler(services *service.Services, engine SyncEngine, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{services: services, engine: engine, logger: logger}
}

// ImportResponse 导入结果
type ImportResponse struct {
	History       int `json:"history"`
	NamedProfiles int `json:"namedProfiles"`
}

// Export 导出当前游戏历史和全部方案
func (h *TransferHandler) Export(c *gin.Context) {
	doc := service.Export(h.services.Games, h.services.Profiles)
	if c.Query("download") != "" {
		name := fmt.Sprintf("pricing-export-%s.json", time.Now().Format("20060102-150405"))
		c.Header("Content-Disposition", "attachment; filename="+name)
	}
	c.JSON(200, doc)
}

// Import 导入文档，方案经同步引擎写入远端
func (h *TransferHandler) Import(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		respondBindError(c, err)
		return
	}
	doc, err := service.ParseTransfer(raw)
	if err != nil {
		respondError(c, err)
		return
	}

	history := h.services.Games.ImportHistory(doc.History)
	profiles := h.engine.ImportProfiles(c.Request.Context(), doc.NamedProfiles)

	h.logger.Info("导入完成",
		zap.Int("history", len(history)),
		zap.Int("named_profiles", len(profiles)))
	respondOK(c, ImportResponse{History: len(history), NamedProfiles: len(profiles)})
}
