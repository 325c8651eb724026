package main

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/vittelang/vittelight/vm"
)

// pluginGroups are the native function sets the CLI can register.
// An empty -plugins value registers all of them.
var pluginGroups = map[string]func(*vm.Context){
	"str":  registerStrNatives,
	"math": registerMathNatives,
	"os":   registerOSNatives,
}

func registerPlugins(ctx *vm.Context, plugins string) error {
	if plugins == "" {
		for _, reg := range pluginGroups {
			reg(ctx)
		}
		return nil
	}
	for _, name := range strings.Split(plugins, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		reg, ok := pluginGroups[name]
		if !ok {
			return fmt.Errorf("unknown native group %q", name)
		}
		reg(ctx)
	}
	return nil
}

func registerStrNatives(ctx *vm.Context) {
	ctx.RegisterNative("str.len", func(c *vm.Context, args []vm.Value, _ any) (vm.Value, vm.Status) {
		if len(args) != 1 || !args[0].IsStr() {
			return vm.Nil, c.Fail(vm.StatusBadArg, "str.len expects one string")
		}
		return vm.FromInt(int64(len(c.StrBytes(args[0])))), vm.StatusOK
	}, nil)

	ctx.RegisterNative("str.upper", func(c *vm.Context, args []vm.Value, _ any) (vm.Value, vm.Status) {
		if len(args) != 1 || !args[0].IsStr() {
			return vm.Nil, c.Fail(vm.StatusBadArg, "str.upper expects one string")
		}
		up := strings.ToUpper(string(c.StrBytes(args[0])))
		return c.NewString([]byte(up)), vm.StatusOK
	}, nil)

	ctx.RegisterNative("str.sub", func(c *vm.Context, args []vm.Value, _ any) (vm.Value, vm.Status) {
		if len(args) != 3 || !args[0].IsStr() {
			return vm.Nil, c.Fail(vm.StatusBadArg, "str.sub expects string, start, end")
		}
		from, ok1 := args[1].AsInt()
		to, ok2 := args[2].AsInt()
		b := c.StrBytes(args[0])
		if !ok1 || !ok2 || from < 0 || to < from || to > int64(len(b)) {
			return vm.Nil, c.Fail(vm.StatusRuntime, "str.sub range out of bounds")
		}
		return c.NewString(b[from:to]), vm.StatusOK
	}, nil)
}

func registerMathNatives(ctx *vm.Context) {
	ctx.RegisterNative("math.abs", func(c *vm.Context, args []vm.Value, _ any) (vm.Value, vm.Status) {
		if len(args) != 1 {
			return vm.Nil, c.Fail(vm.StatusBadArg, "math.abs expects one number")
		}
		switch {
		case args[0].IsInt():
			n := args[0].Int()
			if n == math.MinInt64 {
				return vm.FromFloat(-float64(n)), vm.StatusOK
			}
			if n < 0 {
				n = -n
			}
			return vm.FromInt(n), vm.StatusOK
		case args[0].IsFloat():
			return vm.FromFloat(math.Abs(args[0].Float())), vm.StatusOK
		}
		return vm.Nil, c.Fail(vm.StatusType, "math.abs expects one number")
	}, nil)

	ctx.RegisterNative("math.sqrt", func(c *vm.Context, args []vm.Value, _ any) (vm.Value, vm.Status) {
		if len(args) != 1 {
			return vm.Nil, c.Fail(vm.StatusBadArg, "math.sqrt expects one number")
		}
		f, ok := args[0].AsFloat()
		if !ok {
			return vm.Nil, c.Fail(vm.StatusType, "math.sqrt expects one number")
		}
		return vm.FromFloat(math.Sqrt(f)), vm.StatusOK
	}, nil)

	ctx.RegisterNative("math.floor", func(c *vm.Context, args []vm.Value, _ any) (vm.Value, vm.Status) {
		if len(args) != 1 {
			return vm.Nil, c.Fail(vm.StatusBadArg, "math.floor expects one number")
		}
		if args[0].IsInt() {
			return args[0], vm.StatusOK
		}
		f, ok := args[0].AsFloat()
		if !ok {
			return vm.Nil, c.Fail(vm.StatusType, "math.floor expects one number")
		}
		return vm.FromFloat(math.Floor(f)), vm.StatusOK
	}, nil)
}

func registerOSNatives(ctx *vm.Context) {
	ctx.RegisterNative("os.clock", func(c *vm.Context, args []vm.Value, _ any) (vm.Value, vm.Status) {
		if len(args) != 0 {
			return vm.Nil, c.Fail(vm.StatusBadArg, "os.clock expects no arguments")
		}
		return vm.FromFloat(float64(time.Now().UnixNano()) / 1e9), vm.StatusOK
	}, nil)

	ctx.RegisterNative("os.getenv", func(c *vm.Context, args []vm.Value, _ any) (vm.Value, vm.Status) {
		if len(args) != 1 || !args[0].IsStr() {
			return vm.Nil, c.Fail(vm.StatusBadArg, "os.getenv expects one string")
		}
		val, ok := os.LookupEnv(string(c.StrBytes(args[0])))
		if !ok {
			return vm.Nil, vm.StatusOK
		}
		return c.NewString([]byte(val)), vm.StatusOK
	}, nil)
}
