// Package jit 提供方法级 JIT 编译服务
//
// Compiler 是编译核心对外的入口：把字节码方法交给 codegen 生成机器码，
// 安装到可执行内存并缓存。编译失败的方法记为只解释执行，不会重试。
package jit

import (
	"fmt"

	"github.com/tangzhangming/novajit/internal/jit/codegen"
	"github.com/tangzhangming/novajit/internal/jit/platform"
)

// Config JIT 配置
type Config struct {
	Enabled          bool     `toml:"enabled"`           // 是否启用 JIT
	HotspotThreshold int      `toml:"hotspot_threshold"` // 热点检测阈值（调用次数）
	VerifyMerges     bool     `toml:"verify_merges"`     // 帧合并后逐槽校验
	SuspendOnDefer   bool     `toml:"suspend_on_defer"`  // 延续路径挂起，嵌套路径先编译
	OSR              bool     `toml:"osr"`               // 循环头栈上替换入口
	TimerTicks       bool     `toml:"timer_ticks"`       // 回边时钟滴答
	StackCheck       bool     `toml:"stack_check"`       // 序言栈溢出检查
	QuickCatch       bool     `toml:"quick_catch"`       // 同方法处理器直接接管隐式异常
	MaxPoolElements  int      `toml:"max_pool_elements"` // 队列元素上限，0 表示不限
	Registers        []string `toml:"registers"`         // 可分配寄存器，为空使用默认
	CodeCacheBytes   int      `toml:"code_cache_bytes"`  // 代码缓存容量
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		HotspotThreshold: 1000,
		OSR:              true,
		TimerTicks:       true,
		StackCheck:       true,
		QuickCatch:       true,
		MaxPoolElements:  4096,
		CodeCacheBytes:   16 << 20,
	}
}

// Options 转换为代码生成选项
func (c *Config) Options() (codegen.Options, error) {
	opts := codegen.Options{
		VerifyMerges:   c.VerifyMerges,
		SuspendOnDefer: c.SuspendOnDefer,
		OSR:            c.OSR,
		TimerTicks:     c.TimerTicks,
		StackCheck:     c.StackCheck,
		QuickCatch:     c.QuickCatch,
		MaxElements:    c.MaxPoolElements,
	}
	for _, name := range c.Registers {
		r, ok := platform.ParseReg(name)
		if !ok {
			return opts, fmt.Errorf("unknown register %q", name)
		}
		opts.Registers = append(opts.Registers, r)
	}
	return opts, nil
}
