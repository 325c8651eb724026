// Vitte CLI - runs, disassembles, assembles and caches VitteLight bytecode modules.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("vitte")

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: vitte <command> [options] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run <module.vlbc>    Execute a bytecode module\n")
	fmt.Fprintf(os.Stderr, "  dis <module.vlbc>    Disassemble a bytecode module\n")
	fmt.Fprintf(os.Stderr, "  asm <source.vasm>    Assemble text mnemonics into a module\n")
	fmt.Fprintf(os.Stderr, "  cache <subcommand>   Manage the local module cache\n")
	fmt.Fprintf(os.Stderr, "\nRun 'vitte <command> -h' for command options.\n")
	fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
	fmt.Fprintf(os.Stderr, "  VITTE_TRACE      Trace categories (op,stack,global,call,all)\n")
	fmt.Fprintf(os.Stderr, "  VITTE_MAX_STEPS  Step limit for run (0 = unlimited)\n")
	fmt.Fprintf(os.Stderr, "  VITTE_CACHE_DB   Module cache database path\n")
}

func main() {
	commonlog.Configure(1, nil)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "dis":
		err = cmdDis(os.Args[2:])
	case "asm":
		err = cmdAsm(os.Args[2:])
	case "cache":
		err = cmdCache(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "vitte: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// envInt reads an integer environment variable, falling back to def.
func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warningf("ignoring %s=%q: %s", name, v, err)
		return def
	}
	return n
}
