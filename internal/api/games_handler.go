package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/pricing-sync/internal/models"
	"github.com/wfunc/pricing-sync/internal/service"
)

// GamesHandler 游戏、预设与历史记录处理器
type GamesHandler struct {
	games  service.GameService
	logger *zap.Logger
}

// NewGamesHandler 创建游戏处理器
func NewGamesHandler(games service.GameService, logger *zap.Logger) *GamesHandler {
	return &GamesHandler{games: games, logger: logger}
}

// GameNameRequest 新增或重命名游戏
type GameNameRequest struct {
	Name string `json:"name" binding:"required"`
}

// GamesResponse 游戏列表
type GamesResponse struct {
	Games         []models.Game `json:"games"`
	CurrentGameID string        `json:"currentGameId"`
}

// PresetRequest 新增预设
type PresetRequest struct {
	Label   string  `json:"label"`
	Minutes int     `json:"minutes" binding:"required,gt=0"`
	People  int     `json:"people" binding:"required,gt=0"`
	Cost    float64 `json:"cost"`
	Fee     float64 `json:"fee"`
	Price   float64 `json:"price"`
}

// BaselineResponse 60分/2人基准
type BaselineResponse struct {
	PerMin float64 `json:"perMin"`
	Found  bool    `json:"found"`
}

// List 游戏列表
func (h *GamesHandler) List(c *gin.Context) {
	respondOK(c, GamesResponse{
		Games:         h.games.Games(),
		CurrentGameID: h.games.CurrentGameID(),
	})
}

// Current 当前游戏
func (h *GamesHandler) Current(c *gin.Context) {
	respondOK(c, h.games.CurrentGame())
}

// Add 新增游戏
func (h *GamesHandler) Add(c *gin.Context) {
	var req GameNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	game, err := h.games.AddGame(req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, game)
}

// Rename 重命名游戏
func (h *GamesHandler) Rename(c *gin.Context) {
	var req GameNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.games.RenameGame(c.Param("id"), req.Name); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// Delete 删除游戏，删除最后一个游戏时自动创建默认游戏
func (h *GamesHandler) Delete(c *gin.Context) {
	if err := h.games.DeleteGame(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, GamesResponse{
		Games:         h.games.Games(),
		CurrentGameID: h.games.CurrentGameID(),
	})
}

// Switch 切换当前游戏
func (h *GamesHandler) Switch(c *gin.Context) {
	if err := h.games.SwitchGame(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, h.games.CurrentGame())
}

// AddPreset 为当前游戏新增预设
func (h *GamesHandler) AddPreset(c *gin.Context) {
	var req PresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	preset, err := h.games.AddPreset(models.Preset{
		Label:   req.Label,
		Minutes: req.Minutes,
		People:  req.People,
		Cost:    req.Cost,
		Fee:     req.Fee,
		Price:   req.Price,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, preset)
}

// DeletePreset 删除预设，系统预设不可删除
func (h *GamesHandler) DeletePreset(c *gin.Context) {
	if err := h.games.DeletePreset(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// ImportPresets 追加导入预设
func (h *GamesHandler) ImportPresets(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		respondBindError(c, err)
		return
	}
	presets, err := service.ParsePresets(raw)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, h.games.ImportPresets(presets))
}

// ReplacePresets 用方案内容替换当前游戏的全部预设
func (h *GamesHandler) ReplacePresets(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		respondBindError(c, err)
		return
	}
	presets, err := service.ParsePresets(raw)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, h.games.ReplacePresets(presets))
}

// AddHistory 记录一次计算
func (h *GamesHandler) AddHistory(c *gin.Context) {
	var in models.PriceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBindError(c, err)
		return
	}
	respondCreated(c, h.games.AddHistoryEntry(in))
}

// DeleteHistory 删除一条历史记录
func (h *GamesHandler) DeleteHistory(c *gin.Context) {
	if err := h.games.DeleteHistoryEntry(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// ClearHistory 清空当前游戏的历史记录
func (h *GamesHandler) ClearHistory(c *gin.Context) {
	h.games.ClearHistory()
	respondOK(c, nil)
}

// ImportHistory 导入历史记录
func (h *GamesHandler) ImportHistory(c *gin.Context) {
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
	respondOK(c, h.games.ImportHistory(doc.History))
}

// Baseline 当前游戏 60分/2人 的每分钟利润基准
func (h *GamesHandler) Baseline(c *gin.Context) {
	perMin, found := h.games.BaselinePerMin()
	respondOK(c, BaselineResponse{PerMin: perMin, Found: found})
}

// Calc 计算利润指标，不记录历史
func (h *GamesHandler) Calc(c *gin.Context) {
	var in models.PriceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBindError(c, err)
		return
	}
	respondOK(c, models.ComputeStats(in))
}
