package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 本地存储数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// WebSocketConfig WebSocket通知配置
type WebSocketConfig struct {
	Path            string        `mapstructure:"path"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
}

// SyncConfig 云端同步配置
type SyncConfig struct {
	// 远端驱动：postgres（托管数据库）或 sqlite（本地调试）
	Driver     string        `mapstructure:"driver"`
	DefaultKey string        `mapstructure:"default_key"`
	Debounce   time.Duration `mapstructure:"debounce"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
	Env        SyncEnvConfig `mapstructure:"env"`
	Schema     SchemaConfig  `mapstructure:"schema"`

	// 以下两项由环境变量解析，不从配置文件读取
	URL     string `mapstructure:"-"`
	AnonKey string `mapstructure:"-"`
}

// SyncEnvConfig 远端地址与匿名令牌所在的环境变量名
type SyncEnvConfig struct {
	URLKey  string `mapstructure:"url_key"`
	AnonKey string `mapstructure:"anon_key"`
}

// SchemaConfig 远端表结构映射
type SchemaConfig struct {
	MainTable MainTableConfig `mapstructure:"main_table"`
	ListTable ListTableConfig `mapstructure:"list_table"`
}

// MainTableConfig 主表（每个同步码一行）
type MainTableConfig struct {
	Name                   string `mapstructure:"name"`
	DeviceIDColumn         string `mapstructure:"device_id_column"`
	PayloadColumnGames     string `mapstructure:"payload_column_games"`
	PayloadColumnCurrentID string `mapstructure:"payload_column_current_id"`
	UpdatedAtColumn        string `mapstructure:"updated_at_column"`
}

// ListTableConfig 列表表（每个方案一行）
type ListTableConfig struct {
	Name            string `mapstructure:"name"`
	DeviceIDColumn  string `mapstructure:"device_id_column"`
	ItemIDColumn    string `mapstructure:"item_id_column"`
	NameColumn      string `mapstructure:"name_column"`
	DataColumn      string `mapstructure:"data_column"`
	CreatedAtColumn string `mapstructure:"created_at_column"`
}

// Configured 远端地址和令牌都存在时才启用同步
func (c *SyncConfig) Configured() bool {
	return c.URL != "" && c.AnonKey != ""
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化全局配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v, loaded, err = load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})
	return err
}

// Load 读取一份独立的配置（不影响全局实例）
func Load(configPath string) (*Config, error) {
	_, c, err := load(configPath)
	return c, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	vp := viper.New()

	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	vp.SetEnvPrefix("PRICING")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, nil, fmt.Errorf("解析配置失败: %w", err)
	}

	resolveSyncEnv(&c.Sync)

	return vp, c, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 本地存储默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/pricing.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// WebSocket默认配置
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.ping_interval", "30s")

	// 同步默认配置
	v.SetDefault("sync.driver", "postgres")
	v.SetDefault("sync.default_key", "default")
	v.SetDefault("sync.debounce", "500ms")
	v.SetDefault("sync.cooldown", "3s")
	v.SetDefault("sync.env.url_key", "SUPABASE_URL")
	v.SetDefault("sync.env.anon_key", "SUPABASE_ANON_KEY")
	v.SetDefault("sync.schema.main_table.name", "pricing_sync")
	v.SetDefault("sync.schema.main_table.device_id_column", "device_id")
	v.SetDefault("sync.schema.main_table.payload_column_games", "games")
	v.SetDefault("sync.schema.main_table.payload_column_current_id", "current_game_id")
	v.SetDefault("sync.schema.main_table.updated_at_column", "updated_at")
	v.SetDefault("sync.schema.list_table.name", "pricing_profiles")
	v.SetDefault("sync.schema.list_table.device_id_column", "device_id")
	v.SetDefault("sync.schema.list_table.item_id_column", "profile_id")
	v.SetDefault("sync.schema.list_table.name_column", "name")
	v.SetDefault("sync.schema.list_table.data_column", "rows")
	v.SetDefault("sync.schema.list_table.created_at_column", "created_at")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "pricing.log")
	v.SetDefault("log.file.max_size", 50)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)
}

// resolveSyncEnv 从环境变量读取远端地址和匿名令牌
func resolveSyncEnv(sc *SyncConfig) {
	sc.URL = strings.TrimSpace(os.Getenv(sc.Env.URLKey))
	sc.AnonKey = strings.TrimSpace(os.Getenv(sc.Env.AnonKey))
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		resolveSyncEnv(&newCfg.Sync)

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}

		fmt.Printf("配置已重新加载: %s\n", e.Name)
	})
}
