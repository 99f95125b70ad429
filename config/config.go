// Package config loads the service configuration with viper: built-in
// defaults, an optional yaml file, EXCEL_TRANSLATOR_* environment variables
// and bound command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"excel-translator-web/translator"
)

const (
	EnvPrefix      = "EXCEL_TRANSLATOR"
	ConfigName     = "excel-translator"
	GeminiKeyEnv   = "GEMINI_API_KEY"
	defaultAddr    = ":8080"
	defaultMemory  = 100
	sessionTimeout = 24 * time.Hour
)

// ErrMissingAPIKey 未配置 Gemini API Key
var ErrMissingAPIKey = errors.New("未配置 Gemini API Key（gemini.api_key 或 " + GeminiKeyEnv + "）")

// Config 服务配置
type Config struct {
	Server  ServerConfig
	Gemini  translator.ProviderConfig
	Batch   translator.BatchConfig
	Breaker BreakerConfig
	Session SessionConfig
	Log     LogConfig
}

type ServerConfig struct {
	Addr              string
	MultipartMemoryMB int64
	DevProxy          string // 非空时把前端请求代理到开发服务器
}

type BreakerConfig struct {
	Timeout time.Duration
}

type SessionConfig struct {
	Timeout time.Duration
}

type LogConfig struct {
	Debug bool // 输出每条译文
}

// SetDefaults 注册默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", defaultAddr)
	v.SetDefault("server.multipart_memory_mb", defaultMemory)
	v.SetDefault("server.dev_proxy", "")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.api_url", translator.DefaultGeminiURL)
	v.SetDefault("gemini.prompt", translator.DefaultPrompt)
	v.SetDefault("gemini.timeout", "60s")

	v.SetDefault("batch.size", translator.DefaultBatchSize)
	v.SetDefault("batch.delay", translator.DefaultDelay.String())
	v.SetDefault("batch.placeholder", translator.DefaultPlaceholder)

	v.SetDefault("breaker.timeout", translator.DefaultBreakerTimeout.String())
	v.SetDefault("session.timeout", sessionTimeout.String())
	v.SetDefault("log.debug", false)
}

// Init 设置配置文件查找路径和环境变量，读取配置文件
//
// cfgFile 为空时在当前目录和用户主目录查找 excel-translator.yaml，
// 找不到配置文件不是错误。
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigType("yaml")
		v.SetConfigName(ConfigName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	fmt.Fprintln(os.Stderr, "使用配置文件:", v.ConfigFileUsed())
	return nil
}

// Load 从 viper 解析配置
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Addr:              v.GetString("server.addr"),
			MultipartMemoryMB: v.GetInt64("server.multipart_memory_mb"),
			DevProxy:          v.GetString("server.dev_proxy"),
		},
		Gemini: translator.ProviderConfig{
			APIKey:  APIKey(v),
			APIURL:  v.GetString("gemini.api_url"),
			Prompt:  v.GetString("gemini.prompt"),
			Timeout: v.GetDuration("gemini.timeout"),
		},
		Batch: translator.BatchConfig{
			BatchSize:   v.GetInt("batch.size"),
			Delay:       v.GetDuration("batch.delay"),
			Placeholder: v.GetString("batch.placeholder"),
		},
		Breaker: BreakerConfig{
			Timeout: v.GetDuration("breaker.timeout"),
		},
		Session: SessionConfig{
			Timeout: v.GetDuration("session.timeout"),
		},
		Log: LogConfig{
			Debug: v.GetBool("log.debug"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// APIKey 优先使用配置中的 gemini.api_key，其次是 GEMINI_API_KEY 环境变量
func APIKey(v *viper.Viper) string {
	if key := v.GetString("gemini.api_key"); key != "" {
		return key
	}
	return os.Getenv(GeminiKeyEnv)
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Gemini.APIURL == "" {
		return errors.New("gemini.api_url 不能为空")
	}
	if c.Batch.BatchSize <= 0 {
		return fmt.Errorf("batch.size 必须大于 0，当前为 %d", c.Batch.BatchSize)
	}
	if c.Batch.Delay < 0 {
		return fmt.Errorf("batch.delay 不能为负数，当前为 %s", c.Batch.Delay)
	}
	if c.Server.MultipartMemoryMB <= 0 {
		return fmt.Errorf("server.multipart_memory_mb 必须大于 0，当前为 %d", c.Server.MultipartMemoryMB)
	}
	return nil
}
