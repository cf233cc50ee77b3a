package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/tangzhangming/novajit/internal/bytecode"
	"github.com/tangzhangming/novajit/internal/config"
	jerrors "github.com/tangzhangming/novajit/internal/errors"
	"github.com/tangzhangming/novajit/internal/jit"
	"github.com/tangzhangming/novajit/internal/jit/queue"
	"github.com/tangzhangming/novajit/internal/jit/trampoline"
)

const version = "0.1.0"

var (
	configPath = flag.String("config", config.ConfigFileName, "Configuration file")
	showHex    = flag.Bool("hex", false, "Dump machine code as hex")
	showDis    = flag.Bool("dis", false, "Disassemble bytecode before compiling")
	savePath   = flag.String("save", "", "demo: write the demo methods to an archive")
)

func usage() {
	fmt.Println("novajit " + version)
	fmt.Println()
	fmt.Println("Usage: novajit [options] <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  compile <archive>   Compile every method in a CBOR method archive")
	fmt.Println("  demo                Compile the built-in demo methods")
	fmt.Println("  init                Write a commented default configuration file")
	fmt.Println("  version             Print the version")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config <file>      Configuration file (default novajit.toml)")
	fmt.Println("  -hex                Dump machine code as hex")
	fmt.Println("  -dis                Disassemble bytecode before compiling")
	fmt.Println("  -save <file>        demo: write the demo methods to an archive")
}

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(0)
	}

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "version":
		fmt.Println("novajit " + version)
	case "init":
		err = config.Default().Save(*configPath)
	case "compile":
		if flag.NArg() < 2 {
			err = errors.New("compile: missing archive path")
			break
		}
		err = runCompile(flag.Arg(1))
	case "demo":
		err = runDemo()
	default:
		usage()
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup 读取配置并创建编译器
func setup() (*jit.Compiler, *zap.Logger, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	c, err := jit.New(&cfg.JIT, logger, trampoline.Placeholder())
	if err != nil {
		return nil, nil, err
	}
	return c, logger, nil
}

func runCompile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	methods, err := bytecode.UnmarshalMethods(data)
	if err != nil {
		return err
	}
	return compileAll(methods)
}

func runDemo() error {
	methods := demoMethods()
	if *savePath != "" {
		data, err := bytecode.MarshalMethods(methods...)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*savePath, data, 0644); err != nil {
			return err
		}
	}
	return compileAll(methods)
}

func compileAll(methods []*bytecode.Method) error {
	c, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	failed := 0
	for _, m := range methods {
		if *showDis {
			fmt.Print(m.Disassemble())
		}
		cm, err := c.Compile(m)
		if errors.Is(err, jit.ErrDisabled) {
			return err
		}
		if err != nil {
			failed++
			fmt.Print(jerrors.Format(jerrors.Wrap(err, m.Name, -1)))
			continue
		}
		printMethod(cm)
	}

	st := c.Stats()
	fmt.Println()
	fmt.Printf("compiled %d, bailouts %d, %d code bytes, %d elements, %d suspensions, %v\n",
		st.Compiled, st.Bailouts, st.CodeBytes, st.Elements, st.Suspensions, st.CompileTime)
	if failed > 0 {
		return fmt.Errorf("%d of %d methods were not compiled", failed, len(methods))
	}
	return nil
}

func printMethod(cm *jit.CompiledMethod) {
	res := cm.Result
	fmt.Printf("%-20s %5d bytes  %2d blocks  frame %3d  executable=%t\n",
		cm.Name, len(cm.Code), res.Blocks, res.FrameSize, cm.Executable)

	kinds := make([]queue.Kind, 0, len(res.Elements))
	for k := range res.Elements {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Printf("    %-20s %d\n", k, res.Elements[k])
	}
	for bci, off := range res.OSREntries {
		fmt.Printf("    osr entry @%d        +%d\n", bci, off)
	}
	if *showHex {
		fmt.Println(hex.Dump(cm.Code))
	}
}
