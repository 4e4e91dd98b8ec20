package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// 远端或导入的数据可能被其他客户端或手工修改过，读取时一律规整为安全的默认值

func decodeArray(raw string) []interface{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	// 部分客户端会把 JSON 再编码成字符串
	if s, ok := v.(string); ok {
		return decodeArray(s)
	}
	arr, _ := v.([]interface{})
	return arr
}

func asArray(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		return t
	case string:
		return decodeArray(t)
	default:
		return nil
	}
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func asInt(v interface{}) int {
	return int(asFloat(v))
}

func asBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	case float64:
		return t != 0
	default:
		return false
	}
}

func idOrNew(v interface{}) string {
	if id := asString(v); id != "" {
		return id
	}
	return NewID()
}

// NormalizeGames 解析并规整游戏列表
func NormalizeGames(raw string) []Game {
	return normalizeGames(decodeArray(raw))
}

func normalizeGames(items []interface{}) []Game {
	games := make([]Game, 0, len(items))
	for _, item := range items {
		m, ok := asObject(item)
		if !ok {
			continue
		}
		games = append(games, Game{
			ID:      idOrNew(m["id"]),
			Name:    asString(m["name"]),
			Presets: normalizePresets(asArray(m["presets"])),
			History: normalizeHistory(asArray(m["history"])),
		})
	}
	return games
}

func normalizePresets(items []interface{}) []Preset {
	presets := make([]Preset, 0, len(items))
	for _, item := range items {
		m, ok := asObject(item)
		if !ok {
			continue
		}
		presets = append(presets, Preset{
			ID:       idOrNew(m["id"]),
			Label:    asString(m["label"]),
			Minutes:  asInt(m["minutes"]),
			People:   asInt(m["people"]),
			Cost:     asFloat(m["cost"]),
			Fee:      asFloat(m["fee"]),
			Price:    asFloat(m["price"]),
			IsSystem: asBool(m["isSystem"]),
		})
	}
	return presets
}

func normalizeHistory(items []interface{}) []PriceEntry {
	entries := make([]PriceEntry, 0, len(items))
	for _, item := range items {
		m, ok := asObject(item)
		if !ok {
			continue
		}
		entries = append(entries, PriceEntry{
			ID:             idOrNew(m["id"]),
			GameName:       asString(m["gameName"]),
			Minutes:        asInt(m["minutes"]),
			People:         asInt(m["people"]),
			Cost:           asFloat(m["cost"]),
			Fee:            asFloat(m["fee"]),
			Price:          asFloat(m["price"]),
			Profit:         asFloat(m["profit"]),
			ProfitRate:     asFloat(m["profitRate"]),
			ProfitPerMin:   asFloat(m["profitPerMin"]),
			PricePerPerson: asFloat(m["pricePerPerson"]),
			CreatedAt:      asString(m["createdAt"]),
		})
	}
	return entries
}

// NormalizeRows 解析并规整方案行
func NormalizeRows(raw string) []NamedPresetRow {
	return normalizeRows(decodeArray(raw))
}

func normalizeRows(items []interface{}) []NamedPresetRow {
	rows := make([]NamedPresetRow, 0, len(items))
	for _, item := range items {
		m, ok := asObject(item)
		if !ok {
			continue
		}
		rows = append(rows, NamedPresetRow{
			Minutes: asInt(m["minutes"]),
			People:  asInt(m["people"]),
			Cost:    asFloat(m["cost"]),
			Fee:     asFloat(m["fee"]),
			Profit:  asFloat(m["profit"]),
		})
	}
	return rows
}

// NormalizeProfiles 解析并规整整体存储的方案列表（导入文档使用）
func NormalizeProfiles(items []interface{}) []NamedPresetProfile {
	profiles := make([]NamedPresetProfile, 0, len(items))
	for _, item := range items {
		m, ok := asObject(item)
		if !ok {
			continue
		}
		profiles = append(profiles, NamedPresetProfile{
			ID:        idOrNew(m["id"]),
			Name:      asString(m["name"]),
			Rows:      normalizeRows(asArray(m["rows"])),
			CreatedAt: asString(m["createdAt"]),
		})
	}
	return profiles
}

// NormalizeHistory 规整历史记录（导入文档使用）
func NormalizeHistory(items []interface{}) []PriceEntry {
	return normalizeHistory(items)
}

// NormalizePresets 规整预设（导入使用）
func NormalizePresets(items []interface{}) []Preset {
	return normalizePresets(items)
}
