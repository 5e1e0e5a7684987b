// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找；.env 与环境变量可覆盖连接参数
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml" // TOML 配置文件解析库
	"github.com/joho/godotenv"
)

// MainConfig 主配置，包含应用基本信息
type MainConfig struct {
	AppName string `toml:"appName"` // 应用名称，用于日志标识等
	Host    string `toml:"host"`    // 本地桥接服务监听地址，默认 127.0.0.1
	Port    int    `toml:"port"`    // 本地桥接服务监听端口
	Mode    string `toml:"mode"`    // dev 时日志同时输出到控制台
	Theme   string `toml:"theme"`   // 界面主题：light 或 dark
}

// ServerConfig 远端聊天服务
type ServerConfig struct {
	ApiBaseUrl     string `toml:"apiBaseUrl"`     // REST 根地址，如 http://localhost:5000/api
	WsUrl          string `toml:"wsUrl"`          // 实时通道地址，如 ws://localhost:5000/socket
	Token          string `toml:"token"`          // Bearer Token
	RequestTimeout int    `toml:"requestTimeout"` // 单次 REST 请求超时（秒）
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`    // 日志文件存储目录
	FileName   string `toml:"fileName"`   // 日志文件名
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // 日志级别：debug, info, warn, error
}

// ReconnectConfig 断线重连退避
type ReconnectConfig struct {
	InitialInterval  int `toml:"initialInterval"`  // 首次重试间隔（毫秒）
	MaxInterval      int `toml:"maxInterval"`      // 最大重试间隔（毫秒）
	HandshakeTimeout int `toml:"handshakeTimeout"` // 握手超时（秒）
}

// TypingConfig 输入状态
type TypingConfig struct {
	StopAfter int `toml:"stopAfter"` // 最后一次输入后自动 stop typing 的间隔（毫秒）
}

// StoreConfig 本地快照存储
type StoreConfig struct {
	Mode       string `toml:"mode"`       // none | sqlite | redis
	SqlitePath string `toml:"sqlitePath"` // sqlite 文件路径
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host       string `toml:"host"`       // Redis 服务器地址
	Port       int    `toml:"port"`       // Redis 端口，默认 6379
	Password   string `toml:"password"`   // Redis 密码，无密码留空
	Db         int    `toml:"db"`         // Redis 数据库编号，默认 0
	Expiration int    `toml:"expiration"` // 快照过期时间（小时），0 表示不过期
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"` // 雪花算法节点 ID，范围 0-1023，多开客户端时各自唯一
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig      `toml:"mainConfig"`      // 主配置
	ServerConfig    `toml:"serverConfig"`    // 远端服务配置
	LogConfig       `toml:"logConfig"`       // 日志配置
	ReconnectConfig `toml:"reconnectConfig"` // 重连配置
	TypingConfig    `toml:"typingConfig"`    // 输入状态配置
	StoreConfig     `toml:"storeConfig"`     // 快照存储配置
	RedisConfig     `toml:"redisConfig"`     // Redis 配置
	SnowflakeConfig `toml:"snowflakeConfig"` // 雪花算法配置
}

// RequestTimeoutDuration REST 请求超时
func (c ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// StopAfterDuration 自动 stop typing 间隔
func (c TypingConfig) StopAfterDuration() time.Duration {
	return time.Duration(c.StopAfter) * time.Millisecond
}

// config 全局配置单例，延迟加载
var config *Config

// LoadConfig 从多个候选路径加载配置文件
// 按顺序尝试加载，找到第一个可用的配置文件即停止
func LoadConfig() error {
	paths := []string{
		"configs/config_local.toml",       // 本地开发配置（优先）
		"configs/config.toml",             // 默认配置
		"../../configs/config_local.toml", // 从子目录运行时的路径
		"../../configs/config.toml",       // 从子目录运行时的路径
	}

	for _, path := range paths {
		if _, err := toml.DecodeFile(path, config); err == nil {
			return nil
		}
	}

	return fmt.Errorf("could not find configuration file in any of the search paths")
}

// applyEnv 环境变量覆盖文件中的连接参数
func applyEnv(c *Config) {
	if v := strings.TrimSpace(os.Getenv("CHAT_TOKEN")); v != "" {
		c.ServerConfig.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("CHAT_API_BASE_URL")); v != "" {
		c.ServerConfig.ApiBaseUrl = v
	}
	if v := strings.TrimSpace(os.Getenv("CHAT_WS_URL")); v != "" {
		c.ServerConfig.WsUrl = v
	}
}

func applyDefaults(c *Config) {
	if c.MainConfig.AppName == "" {
		c.MainConfig.AppName = "kama_chat_client"
	}
	if c.MainConfig.Host == "" {
		c.MainConfig.Host = "127.0.0.1"
	}
	if c.MainConfig.Port == 0 {
		c.MainConfig.Port = 8700
	}
	if c.MainConfig.Theme != "dark" {
		c.MainConfig.Theme = "light"
	}
	if c.ServerConfig.RequestTimeout <= 0 {
		c.ServerConfig.RequestTimeout = 10
	}
	if c.ReconnectConfig.InitialInterval <= 0 {
		c.ReconnectConfig.InitialInterval = 500
	}
	if c.ReconnectConfig.MaxInterval <= 0 {
		c.ReconnectConfig.MaxInterval = 30000
	}
	if c.ReconnectConfig.HandshakeTimeout <= 0 {
		c.ReconnectConfig.HandshakeTimeout = 10
	}
	if c.TypingConfig.StopAfter <= 0 {
		c.TypingConfig.StopAfter = 3000
	}
	if c.StoreConfig.Mode == "" {
		c.StoreConfig.Mode = "none"
	}
	if c.StoreConfig.SqlitePath == "" {
		c.StoreConfig.SqlitePath = "chat_snapshot.db"
	}
	if c.RedisConfig.Port == 0 {
		c.RedisConfig.Port = 6379
	}
}

// GetConfig 获取全局配置实例（单例模式）
// 首次调用时会自动加载 .env 与配置文件
func GetConfig() *Config {
	if config == nil {
		_ = godotenv.Load(".env")
		config = new(Config)
		_ = LoadConfig() // 忽略加载错误，使用默认值
		applyEnv(config)
		applyDefaults(config)
	}
	return config
}
