package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/vittelang/vittelight/asm"
	"github.com/vittelang/vittelight/manifest"
	"github.com/vittelang/vittelight/store"
	"github.com/vittelang/vittelight/vm"
)

// runSettings is the merged run configuration: manifest values first,
// then environment, then flags.
type runSettings struct {
	trace     string
	maxSteps  int
	stackSize int
	plugins   string
	gcBytes   int
	noCache   bool
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	trace := fs.String("trace", "", "Trace categories: op,stack,global,call,all")
	maxSteps := fs.Int("max-steps", 0, "Abort after this many instructions (0 = unlimited)")
	stackSize := fs.Int("stack-size", 0, "Operand stack slots (0 = default)")
	plugins := fs.String("plugins", "", "Comma-separated native groups to register (default all)")
	gcBytes := fs.Int("gc-threshold", 0, "GC trigger in heap bytes (0 = default)")
	noCache := fs.Bool("no-cache", false, "Skip recording the module in the local cache")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("run: expected exactly one module path")
	}
	path := fs.Arg(0)

	s := runSettings{
		trace:     *trace,
		maxSteps:  *maxSteps,
		stackSize: *stackSize,
		plugins:   *plugins,
		gcBytes:   *gcBytes,
		noCache:   *noCache,
	}
	mergeSettings(&s, fs)

	m, err := vm.LoadFile(path)
	if err != nil {
		return err
	}

	ctx := vm.NewContext(vm.Config{StackSize: s.stackSize, TraceSink: os.Stdout})
	ctx.Attach(m)
	ctx.AttachGC(uint64(s.gcBytes))

	if s.trace != "" {
		mask, err := vm.ParseTraceMask(s.trace)
		if err != nil {
			return err
		}
		ctx.SetTrace(mask)
	}

	if err := registerPlugins(ctx, s.plugins); err != nil {
		return err
	}

	if !s.noCache {
		recordModule(m, ctx.ID)
	}

	st := ctx.Run(uint64(s.maxSteps))
	if st != vm.StatusOK {
		rec := ctx.LastError()
		return fmt.Errorf("%s: %s", st, rec.Error())
	}
	return nil
}

// mergeSettings fills unset run options from the environment and from a
// vitte.toml manifest found above the working directory. Flags win over
// environment, environment wins over manifest.
func mergeSettings(s *runSettings, fs *flag.FlagSet) {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["trace"] && s.trace == "" {
		s.trace = os.Getenv("VITTE_TRACE")
	}
	if !set["max-steps"] {
		s.maxSteps = envInt("VITTE_MAX_STEPS", s.maxSteps)
	}
	if !set["plugins"] && s.plugins == "" {
		s.plugins = os.Getenv("VITTE_PLUGINS")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	man, err := manifest.FindAndLoad(cwd)
	if err != nil {
		log.Warningf("ignoring manifest: %s", err)
		return
	}
	if man == nil {
		return
	}
	log.Infof("using manifest in %s", man.Dir)
	if s.trace == "" {
		s.trace = man.Run.Trace
	}
	if s.maxSteps == 0 {
		s.maxSteps = man.Run.MaxSteps
	}
	if s.stackSize == 0 {
		s.stackSize = man.Run.StackSize
	}
	if s.plugins == "" {
		s.plugins = strings.Join(man.Run.Plugins, ",")
	}
	if p := man.CachePath(); p != "" && os.Getenv("VITTE_CACHE_DB") == "" {
		os.Setenv("VITTE_CACHE_DB", p)
	}
}

// recordModule best-effort caches the module; a broken cache never stops a run.
func recordModule(m *vm.Module, contextID string) {
	st, err := store.OpenDefault()
	if err != nil {
		log.Warningf("module cache unavailable: %s", err)
		return
	}
	defer st.Close()
	if _, err := st.Put(m, contextID); err != nil {
		log.Warningf("caching module: %s", err)
	}
}

func cmdDis(args []string) error {
	fs := flag.NewFlagSet("dis", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("dis: expected exactly one module path")
	}

	m, err := vm.LoadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Print(vm.Disassemble(m))
	return nil
}

func cmdAsm(args []string) error {
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	out := fs.String("o", "", "Output path (default: source path with .vlbc extension)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("asm: expected exactly one source path")
	}
	src := fs.Arg(0)

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	m, err := asm.AssembleString(string(data))
	if err != nil {
		return err
	}

	dest := *out
	if dest == "" {
		dest = strings.TrimSuffix(src, ".vasm") + ".vlbc"
	}
	if err := os.WriteFile(dest, m.Encode(), 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d constants, %d code bytes)\n", dest, m.ConstCount(), len(m.Code))
	return nil
}

func cmdCache(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("cache: expected subcommand: list, get, del, put")
	}

	st, err := store.OpenDefault()
	if err != nil {
		return err
	}
	defer st.Close()

	switch args[0] {
	case "list":
		entries, err := st.List()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %8d bytes  %s\n", e.Hash, e.Size, e.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		if len(entries) == 0 {
			fmt.Println("cache is empty")
		}
		return nil
	case "get":
		if len(args) != 3 {
			return fmt.Errorf("cache get: expected <hash> <output path>")
		}
		m, err := st.Get(args[1])
		if err != nil {
			return err
		}
		return os.WriteFile(args[2], m.Encode(), 0o644)
	case "del":
		if len(args) != 2 {
			return fmt.Errorf("cache del: expected <hash>")
		}
		return st.Del(args[1])
	case "put":
		if len(args) != 2 {
			return fmt.Errorf("cache put: expected <module path>")
		}
		m, err := vm.LoadFile(args[1])
		if err != nil {
			return err
		}
		hash, err := st.Put(m, "")
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	default:
		return fmt.Errorf("cache: unknown subcommand %q", args[0])
	}
}
