package service

import (
	"encoding/json"

	"github.com/wfunc/pricing-sync/internal/errors"
	"github.com/wfunc/pricing-sync/internal/models"
)

// Export 导出当前游戏历史和全部命名方案
func Export(games GameService, profiles ProfileService) models.TransferDocument {
	doc := models.TransferDocument{
		History:       games.CurrentGame().History,
		NamedProfiles: profiles.Profiles(),
	}
	if doc.History == nil {
		doc.History = []models.PriceEntry{}
	}
	return doc
}

// ParseTransfer 解析导入文档
//
// 支持 {history, namedProfiles} 对象、历史记录数组或单条历史记录。
func ParseTransfer(raw []byte) (models.TransferDocument, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.TransferDocument{}, errors.Wrap(err, errors.ErrImportFormat)
	}

	doc := models.TransferDocument{
		History:       []models.PriceEntry{},
		NamedProfiles: []models.NamedPresetProfile{},
	}
	switch t := v.(type) {
	case []interface{}:
		doc.History = models.NormalizeHistory(t)
	case map[string]interface{}:
		h, hasHistory := t["history"]
		p, hasProfiles := t["namedProfiles"]
		if hasHistory || hasProfiles {
			if arr, ok := h.([]interface{}); ok {
				doc.History = models.NormalizeHistory(arr)
			}
			if arr, ok := p.([]interface{}); ok {
				doc.NamedProfiles = models.NormalizeProfiles(arr)
			}
		} else {
			doc.History = models.NormalizeHistory([]interface{}{t})
		}
	default:
		return doc, errors.New(errors.ErrImportFormat)
	}
	return doc, nil
}

// ParsePresets 解析预设数组或单个预设
func ParsePresets(raw []byte) ([]models.Preset, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.Wrap(err, errors.ErrImportFormat)
	}
	switch t := v.(type) {
	case []interface{}:
		return models.NormalizePresets(t), nil
	case map[string]interface{}:
		return models.NormalizePresets([]interface{}{t}), nil
	default:
		return nil, errors.New(errors.ErrImportFormat)
	}
}

// ParseProfiles 解析方案数组或包含 namedProfiles 的文档
func ParseProfiles(raw []byte) ([]models.NamedPresetProfile, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.Wrap(err, errors.ErrImportFormat)
	}
	switch t := v.(type) {
	case []interface{}:
		return models.NormalizeProfiles(t), nil
	case map[string]interface{}:
		if arr, ok := t["namedProfiles"].([]interface{}); ok {
			return models.NormalizeProfiles(arr), nil
		}
		return models.NormalizeProfiles([]interface{}{t}), nil
	default:
		return nil, errors.New(errors.ErrImportFormat)
	}
}
