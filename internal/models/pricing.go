package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultGameName 首次运行或删除最后一个游戏时自动创建的游戏名
const DefaultGameName = "預設遊戲"

// Game 游戏（预设与历史记录的容器）
type Game struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Presets []Preset     `json:"presets"`
	History []PriceEntry `json:"history"`
}

// Preset 定价预设
type Preset struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Minutes  int     `json:"minutes"`
	People   int     `json:"people"`
	Cost     float64 `json:"cost"`
	Fee      float64 `json:"fee"`
	Price    float64 `json:"price"`
	IsSystem bool    `json:"isSystem"`
}

// PriceEntry 历史计算记录，派生字段只在创建时计算一次
type PriceEntry struct {
	ID             string  `json:"id"`
	GameName       string  `json:"gameName"`
	Minutes        int     `json:"minutes"`
	People         int     `json:"people"`
	Cost           float64 `json:"cost"`
	Fee            float64 `json:"fee"`
	Price          float64 `json:"price"`
	Profit         float64 `json:"profit"`
	ProfitRate     float64 `json:"profitRate"`
	ProfitPerMin   float64 `json:"profitPerMin"`
	PricePerPerson float64 `json:"pricePerPerson"`
	CreatedAt      string  `json:"createdAt"`
}

// PriceInput 计算器输入
type PriceInput struct {
	GameName string  `json:"gameName"`
	Minutes  int     `json:"minutes"`
	People   int     `json:"people"`
	Cost     float64 `json:"cost"`
	Fee      float64 `json:"fee"`
	Price    float64 `json:"price"`
}

// Stats 计算结果
type Stats struct {
	Profit         float64 `json:"profit"`
	ProfitRate     float64 `json:"profitRate"`
	ProfitPerMin   float64 `json:"profitPerMin"`
	PricePerPerson float64 `json:"pricePerPerson"`
}

// ComputeStats 计算利润、利润率、每分钟利润和人均价格，除数为0时结果为0
func ComputeStats(in PriceInput) Stats {
	s := Stats{Profit: in.Price - in.Cost - in.Fee}
	if in.Cost != 0 {
		s.ProfitRate = s.Profit / in.Cost * 100
	}
	if in.Minutes != 0 {
		s.ProfitPerMin = s.Profit / float64(in.Minutes)
	}
	if in.People != 0 {
		s.PricePerPerson = in.Price / float64(in.People)
	}
	return s
}

// NewPriceEntry 根据输入创建历史记录
func NewPriceEntry(in PriceInput, now time.Time) PriceEntry {
	s := ComputeStats(in)
	return PriceEntry{
		ID:             NewID(),
		GameName:       in.GameName,
		Minutes:        in.Minutes,
		People:         in.People,
		Cost:           in.Cost,
		Fee:            in.Fee,
		Price:          in.Price,
		Profit:         s.Profit,
		ProfitRate:     s.ProfitRate,
		ProfitPerMin:   s.ProfitPerMin,
		PricePerPerson: s.PricePerPerson,
		CreatedAt:      FormatTime(now),
	}
}

// systemPresets 系统预设（种子数据）
var systemPresets = []Preset{
	{Label: "30分/1人", Minutes: 30, People: 1, Cost: 900, Fee: 100, Price: 1800, IsSystem: true},
	{Label: "40分/1人", Minutes: 40, People: 1, Cost: 1000, Fee: 200, Price: 2000, IsSystem: true},
	{Label: "60分/1人", Minutes: 60, People: 1, Cost: 1300, Fee: 200, Price: 2500, IsSystem: true},
	{Label: "60分/2人", Minutes: 60, People: 2, Cost: 1700, Fee: 200, Price: 3000, IsSystem: true},
	{Label: "90分/2人", Minutes: 90, People: 2, Cost: 2200, Fee: 200, Price: 3800, IsSystem: true},
}

// DefaultPresets 返回带新ID的系统预设
func DefaultPresets() []Preset {
	presets := make([]Preset, len(systemPresets))
	for i, p := range systemPresets {
		p.ID = NewID()
		presets[i] = p
	}
	return presets
}

// NewGame 创建带系统预设的新游戏
func NewGame(name string) Game {
	return Game{
		ID:      NewID(),
		Name:    name,
		Presets: DefaultPresets(),
		History: []PriceEntry{},
	}
}

// Clone 深拷贝，避免调用方修改共享切片
func (g Game) Clone() Game {
	c := g
	c.Presets = append([]Preset{}, g.Presets...)
	c.History = append([]PriceEntry{}, g.History...)
	return c
}

// CloneGames 深拷贝游戏列表
func CloneGames(games []Game) []Game {
	out := make([]Game, len(games))
	for i, g := range games {
		out[i] = g.Clone()
	}
	return out
}

// NewID 生成随机ID
func NewID() string {
	return uuid.NewString()
}

// FormatTime 统一的时间格式（ISO-8601，毫秒精度）
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
