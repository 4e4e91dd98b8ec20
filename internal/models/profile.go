package models

// NamedPresetRow 方案中的一行，价格由 成本+手续费+利润 推导，不存储
type NamedPresetRow struct {
	Minutes int     `json:"minutes"`
	People  int     `json:"people"`
	Cost    float64 `json:"cost"`
	Fee     float64 `json:"fee"`
	Profit  float64 `json:"profit"`
}

// Price 推导价格
func (r NamedPresetRow) Price() float64 {
	return r.Cost + r.Fee + r.Profit
}

// NamedPresetProfile 命名方案
type NamedPresetProfile struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Rows      []NamedPresetRow `json:"rows"`
	CreatedAt string           `json:"createdAt"`
}

// Clone 深拷贝
func (p NamedPresetProfile) Clone() NamedPresetProfile {
	c := p
	c.Rows = append([]NamedPresetRow{}, p.Rows...)
	return c
}

// CloneProfiles 深拷贝方案列表
func CloneProfiles(profiles []NamedPresetProfile) []NamedPresetProfile {
	out := make([]NamedPresetProfile, len(profiles))
	for i, p := range profiles {
		out[i] = p.Clone()
	}
	return out
}

// TransferDocument 导入导出文档
type TransferDocument struct {
	History       []PriceEntry         `json:"history"`
	NamedProfiles []NamedPresetProfile `json:"namedProfiles"`
}
