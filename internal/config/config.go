// Package config 读取与写出 novajit.toml，并据此构造日志器
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tangzhangming/novajit/internal/jit"
)

// 常量定义
const (
	ConfigFileName = "novajit.toml" // 配置文件名
)

// Config 配置文件
type Config struct {
	JIT jit.Config `toml:"jit"`
	Log LogConfig  `toml:"log"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别（debug、info、warn、error）
	Level string `toml:"level"`

	// Development 开发模式：可读的控制台输出
	Development bool `toml:"development"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		JIT: *jit.DefaultConfig(),
		Log: LogConfig{Level: "info"},
	}
}

// Load 从文件加载配置，文件不存在时返回默认配置
// 文件中没有出现的字段保持默认值
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if c.JIT.HotspotThreshold < 0 {
		return fmt.Errorf("jit.hotspot_threshold must not be negative")
	}
	if c.JIT.MaxPoolElements < 0 {
		return fmt.Errorf("jit.max_pool_elements must not be negative")
	}
	if _, err := c.JIT.Options(); err != nil {
		return fmt.Errorf("jit.registers: %w", err)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Save 保存配置到文件
func (c *Config) Save(path string) error {
	// 生成带注释的配置文件内容
	content := generateConfigWithComments(c)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateConfigWithComments 生成带注释的配置文件内容
func generateConfigWithComments(c *Config) string {
	var sb strings.Builder
	j := c.JIT

	sb.WriteString("[jit]\n")
	sb.WriteString("# 是否启用 JIT 编译\n")
	sb.WriteString(fmt.Sprintf("enabled = %t\n\n", j.Enabled))
	sb.WriteString("# 方法被调用多少次后编译\n")
	sb.WriteString(fmt.Sprintf("hotspot_threshold = %d\n\n", j.HotspotThreshold))
	sb.WriteString("# 每次帧合并后逐槽校验（调试用，编译变慢）\n")
	sb.WriteString(fmt.Sprintf("verify_merges = %t\n\n", j.VerifyMerges))
	sb.WriteString("# 延续路径推迟嵌套路径时挂起，让嵌套路径先编译\n")
	sb.WriteString(fmt.Sprintf("suspend_on_defer = %t\n\n", j.SuspendOnDefer))
	sb.WriteString("# 循环头生成栈上替换入口\n")
	sb.WriteString(fmt.Sprintf("osr = %t\n\n", j.OSR))
	sb.WriteString("# 回边检查时钟滴答\n")
	sb.WriteString(fmt.Sprintf("timer_ticks = %t\n\n", j.TimerTicks))
	sb.WriteString("# 序言检查栈溢出\n")
	sb.WriteString(fmt.Sprintf("stack_check = %t\n\n", j.StackCheck))
	sb.WriteString("# 同方法内的异常处理器直接接管隐式异常\n")
	sb.WriteString(fmt.Sprintf("quick_catch = %t\n\n", j.QuickCatch))
	sb.WriteString("# 单个方法编译队列的元素上限（0 表示不限）\n")
	sb.WriteString(fmt.Sprintf("max_pool_elements = %d\n\n", j.MaxPoolElements))
	sb.WriteString("# 可分配寄存器，按偏好排序；留空使用默认集合\n")
	sb.WriteString(fmt.Sprintf("registers = [%s]\n\n", quoteList(j.Registers)))
	sb.WriteString("# 代码缓存容量（字节）\n")
	sb.WriteString(fmt.Sprintf("code_cache_bytes = %d\n\n", j.CodeCacheBytes))

	sb.WriteString("[log]\n")
	sb.WriteString("# 日志级别：debug、info、warn、error\n")
	sb.WriteString(fmt.Sprintf("level = %q\n\n", c.Log.Level))
	sb.WriteString("# 开发模式：控制台格式输出\n")
	sb.WriteString(fmt.Sprintf("development = %t\n", c.Log.Development))

	return sb.String()
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

// NewLogger 按日志配置构造 zap 日志器
func NewLogger(c LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
