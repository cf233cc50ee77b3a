package jit

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/tangzhangming/novajit/internal/bytecode"
	jerrors "github.com/tangzhangming/novajit/internal/errors"
	"github.com/tangzhangming/novajit/internal/jit/codegen"
	"github.com/tangzhangming/novajit/internal/jit/trampoline"
)

// ErrDisabled JIT 未启用
var ErrDisabled = errors.New("jit is disabled")

// ============================================================================
// 编译结果
// ============================================================================

// CompiledMethod 编译并安装后的方法
type CompiledMethod struct {
	Name       string
	Code       []byte      // 机器码
	Entry      uintptr     // 入口地址
	Executable bool        // 代码是否位于可执行内存
	OSREntries map[int]int // 循环头 bci -> 代码偏移
	Result     *codegen.Result
	Duration   time.Duration
}

// OSREntry 循环头的栈上替换入口地址
func (cm *CompiledMethod) OSREntry(bci int) (uintptr, bool) {
	off, ok := cm.OSREntries[bci]
	if !ok || cm.Entry == 0 {
		return 0, false
	}
	return cm.Entry + uintptr(off), true
}

// Bailout 放弃编译：方法此后只解释执行
type Bailout struct {
	Method string
	Code   string
	Class  jerrors.Class
	BCI    int
	Err    error
}

func (b *Bailout) Error() string {
	return fmt.Sprintf("jit bailout %s: %v", b.Method, b.Err)
}

func (b *Bailout) Unwrap() error {
	return b.Err
}

func newBailout(method string, err error) *Bailout {
	b := &Bailout{Method: method, Class: jerrors.ClassInvariant, BCI: -1, Err: err}
	var je *jerrors.Error
	if errors.As(err, &je) {
		b.Code, b.Class, b.BCI = je.Code, je.Class, je.BCI
	}
	return b
}

// ============================================================================
// 统计
// ============================================================================

// Stats 编译器统计
type Stats struct {
	Compiled        int64         // 编译成功的方法数
	Bailouts        int64         // 放弃编译的方法数
	CacheHits       int64         // 缓存命中
	CacheMisses     int64         // 缓存未命中
	HotspotCompiles int64         // 热点触发的编译数
	CodeBytes       int64         // 机器码总字节数
	Elements        int64         // 编译过的队列元素总数
	Suspensions     int64         // 延续路径挂起总数
	CompileTime     time.Duration // 总编译时间
}

type counters struct {
	compiled        atomic.Int64
	bailouts        atomic.Int64
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	hotspotCompiles atomic.Int64
	codeBytes       atomic.Int64
	elements        atomic.Int64
	suspensions     atomic.Int64
	compileTime     atomic.Duration
}

func (s *counters) reset() {
	for _, n := range []*atomic.Int64{
		&s.compiled, &s.bailouts, &s.cacheHits, &s.cacheMisses,
		&s.hotspotCompiles, &s.codeBytes, &s.elements, &s.suspensions,
	} {
		n.Store(0)
	}
	s.compileTime.Store(0)
}

// ============================================================================
// 编译器
// ============================================================================

// Compiler JIT 编译器
//
// 可以被多个 goroutine 同时使用；同一个方法同时只有一次编译，
// 不同方法的编译各自使用独立的编译上下文。
type Compiler struct {
	config   *Config
	opts     codegen.Options
	routines *trampoline.Table
	logger   *zap.Logger
	cache    *CodeCache

	mu        sync.Mutex
	methods   map[string]*CompiledMethod
	bailouts  map[string]*Bailout
	compiling map[string]bool
	hotspots  map[string]int

	stats counters
}

// New 创建 JIT 编译器
func New(config *Config, logger *zap.Logger, routines *trampoline.Table) (*Compiler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts, err := config.Options()
	if err != nil {
		return nil, err
	}
	if missing := routines.Missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, r := range missing {
			names[i] = r.String()
		}
		logger.Warn("runtime routines not registered", zap.Strings("routines", names))
	}
	return &Compiler{
		config:    config,
		opts:      opts,
		routines:  routines,
		logger:    logger,
		cache:     NewCodeCache(config.CodeCacheBytes),
		methods:   make(map[string]*CompiledMethod),
		bailouts:  make(map[string]*Bailout),
		compiling: make(map[string]bool),
		hotspots:  make(map[string]int),
	}, nil
}

// Config 编译器配置
func (c *Compiler) Config() *Config { return c.config }

// ============================================================================
// 编译接口
// ============================================================================

// Compile 编译方法
//
// 已编译的方法直接返回缓存；放弃过的方法返回当初的 *Bailout，不会重试。
// 同一方法的编译正在进行时返回 J0205。
func (c *Compiler) Compile(m *bytecode.Method) (*CompiledMethod, error) {
	if !c.config.Enabled {
		return nil, ErrDisabled
	}

	c.mu.Lock()
	if cm, ok := c.methods[m.Name]; ok {
		c.mu.Unlock()
		c.stats.cacheHits.Inc()
		return cm, nil
	}
	if b, ok := c.bailouts[m.Name]; ok {
		c.mu.Unlock()
		return nil, b
	}
	if c.compiling[m.Name] {
		c.mu.Unlock()
		return nil, jerrors.Invariantf(jerrors.J0205, "%s is already being compiled", m.Name)
	}
	c.compiling[m.Name] = true
	c.mu.Unlock()
	c.stats.cacheMisses.Inc()

	cm, err := c.compile(m)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.compiling, m.Name)
	if err != nil {
		b := newBailout(m.Name, err)
		c.bailouts[m.Name] = b
		c.stats.bailouts.Inc()
		c.logger.Warn("jit bailout",
			zap.String("method", m.Name),
			zap.String("code", b.Code),
			zap.Stringer("class", b.Class),
			zap.Int("bci", b.BCI),
			zap.Error(b.Err),
		)
		return nil, b
	}
	c.methods[m.Name] = cm
	return cm, nil
}

func (c *Compiler) compile(m *bytecode.Method) (*CompiledMethod, error) {
	start := time.Now()
	logger := c.logger.With(zap.String("method", m.Name))
	logger.Debug("compiling", zap.Int("bytecode_bytes", len(m.Code)))

	res, err := codegen.Compile(m, c.routines, c.opts, logger)
	if err != nil {
		return nil, err
	}
	region, err := c.cache.install(res.Code)
	if err != nil {
		return nil, err
	}
	if region.mapErr != nil {
		logger.Warn("code is not executable", zap.Error(region.mapErr))
	}

	cm := &CompiledMethod{
		Name:       m.Name,
		Code:       region.code,
		Entry:      region.entry(),
		Executable: region.executable(),
		OSREntries: res.OSREntries,
		Result:     res,
		Duration:   time.Since(start),
	}
	c.stats.compiled.Inc()
	c.stats.codeBytes.Add(int64(len(res.Code)))
	c.stats.elements.Add(int64(res.Queue.Compiled))
	c.stats.suspensions.Add(int64(res.Queue.Suspended))
	c.stats.compileTime.Add(cm.Duration)

	logger.Info("compiled",
		zap.Int("code_bytes", len(res.Code)),
		zap.Int("elements", res.Queue.Compiled),
		zap.Int("osr_entries", len(res.OSREntries)),
		zap.Bool("executable", cm.Executable),
		zap.Duration("duration", cm.Duration),
	)
	return cm, nil
}

// Lookup 查找已编译的方法
func (c *Compiler) Lookup(name string) (*CompiledMethod, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cm, ok := c.methods[name]
	return cm, ok
}

// InterpretOnly 方法是否已放弃编译
func (c *Compiler) InterpretOnly(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.bailouts[name]
	return ok
}

// Methods 已编译方法名（排序）
func (c *Compiler) Methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.methods))
	for name := range c.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ============================================================================
// 热点检测
// ============================================================================

// RecordInvocation 记录一次调用，达到阈值时编译
// 返回方法的编译结果；未达到阈值、已放弃或未启用时返回 nil
func (c *Compiler) RecordInvocation(m *bytecode.Method) *CompiledMethod {
	if !c.config.Enabled {
		return nil
	}
	c.mu.Lock()
	if cm, ok := c.methods[m.Name]; ok {
		c.mu.Unlock()
		return cm
	}
	c.hotspots[m.Name]++
	hot := c.hotspots[m.Name] >= c.config.HotspotThreshold
	c.mu.Unlock()
	if !hot {
		return nil
	}

	cm, err := c.Compile(m)
	if err != nil {
		return nil
	}
	c.stats.hotspotCompiles.Inc()
	return cm
}

// ============================================================================
// 统计与重置
// ============================================================================

// Stats 获取统计信息
func (c *Compiler) Stats() Stats {
	return Stats{
		Compiled:        c.stats.compiled.Load(),
		Bailouts:        c.stats.bailouts.Load(),
		CacheHits:       c.stats.cacheHits.Load(),
		CacheMisses:     c.stats.cacheMisses.Load(),
		HotspotCompiles: c.stats.hotspotCompiles.Load(),
		CodeBytes:       c.stats.codeBytes.Load(),
		Elements:        c.stats.elements.Load(),
		Suspensions:     c.stats.suspensions.Load(),
		CompileTime:     c.stats.compileTime.Load(),
	}
}

// Reset 清空缓存、放弃记录与统计，释放全部代码
// 调用方保证没有线程仍在执行已编译的代码
func (c *Compiler) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods = make(map[string]*CompiledMethod)
	c.bailouts = make(map[string]*Bailout)
	c.hotspots = make(map[string]int)
	c.stats.reset()
	return c.cache.Clear()
}

// Invalidate 丢弃单个方法的编译结果与放弃记录，下次调用时重新编译
// 代码内存在 Reset 时统一释放
func (c *Compiler) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.methods, name)
	delete(c.bailouts, name)
	delete(c.hotspots, name)
}
