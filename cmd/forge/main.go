// Forge CLI - compiles a method image to native code and runs it
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/forge/codebuf"
	"github.com/chazu/forge/config"
	"github.com/chazu/forge/jit"
	"github.com/chazu/forge/vm"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML configuration file")
	imagePath := flag.String("image", "", "Method image to load (CBOR); omit to run the built-in demo")
	methodName := flag.String("m", "main", "Method to compile and run")
	recvArg := flag.String("recv", "nil", "Receiver: nil, true, false, or a small integer")
	argList := flag.String("args", "", "Comma-separated small-integer arguments")
	verbosity := flag.Int("v", 0, "Log verbosity (0-3)")
	trace := flag.Bool("trace", false, "Disassemble generated code as it is written")
	disasm := flag.Bool("disasm", false, "Print bytecode disassembly before compiling")
	interpOnly := flag.Bool("interp", false, "Interpret instead of compiling")
	check := flag.Bool("check", false, "Cross-check the native result against the interpreter")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: forge [options]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles a method image to native code and runs one method.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  forge                          # Run the built-in demo\n")
		fmt.Fprintf(os.Stderr, "  forge -image app.fimg -m main  # Load app.fimg, run 'main'\n")
		fmt.Fprintf(os.Stderr, "  forge -m max: -recv 5 -args 3  # Run 'max:' with receiver 5, arg 3\n")
		fmt.Fprintf(os.Stderr, "  forge -trace -v 2              # Log generated code as disassembly\n")
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fail(err)
		}
	}
	if *trace {
		cfg.Code.Trace = true
	}

	methods := demoMethods()
	if *imagePath != "" {
		var err error
		if methods, err = vm.ReadImageFile(*imagePath); err != nil {
			fail(err)
		}
	}

	m, err := methods.Resolve(*methodName)
	if err != nil {
		fail(err)
	}
	self, err := parseValue(*recvArg)
	if err != nil {
		fail(err)
	}
	args, err := parseArgs(*argList)
	if err != nil {
		fail(err)
	}
	if len(args) != m.Arity {
		fail(fmt.Errorf("%s takes %d arguments, got %d", m.Name(), m.Arity, len(args)))
	}

	if *disasm {
		fmt.Printf("%s:\n%s", m, m.Disassemble())
	}

	interp := vm.NewInterp(methods)
	if *interpOnly {
		result, err := interp.Run(m, self, args)
		if err != nil {
			fail(err)
		}
		fmt.Println(result)
		return
	}

	buf, err := codebuf.New(cfg.Code.Capacity)
	if err != nil {
		fail(err)
	}
	defer buf.Close()
	buf.SetTrace(cfg.Code.Trace)

	result, err := jit.New(buf, methods).Invoke(m, self, args)
	if err != nil {
		fail(err)
	}

	if *check {
		ref, err := interp.Run(m, self, args)
		if err != nil {
			fail(fmt.Errorf("interpreter check: %w", err))
		}
		if ref != result {
			fail(fmt.Errorf("native result %s disagrees with interpreter result %s", result, ref))
		}
	}
	fmt.Println(result)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func parseValue(s string) (vm.Value, error) {
	switch s {
	case "nil":
		return vm.Nil, nil
	case "true":
		return vm.True, nil
	case "false":
		return vm.False, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return vm.Nil, fmt.Errorf("bad value %q: %w", s, err)
	}
	v, ok := vm.TryFromSmallInt(n)
	if !ok {
		return vm.Nil, fmt.Errorf("%d outside the small-integer range", n)
	}
	return v, nil
}

func parseArgs(s string) ([]vm.Value, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	args := make([]vm.Value, 0, len(parts))
	for _, p := range parts {
		v, err := parseValue(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// demoMethods builds the method set used when no image is given:
// main answers the larger of 5 and 3, decremented by one.
func demoMethods() *vm.MethodTable {
	table := vm.NewMethodTable()

	max := vm.NewMethodBuilder("max:", 1)
	mbc := max.Bytecode()
	mbc.Emit(vm.OpPushSelf)
	mbc.EmitByte(vm.OpPushLocal, 0)
	mbc.Emit(vm.OpLessThan)
	at := mbc.ReserveBranch()
	mbc.EmitByte(vm.OpPushLocal, 0)
	mbc.Emit(vm.OpReturn)
	mbc.PatchBranch(at)
	mbc.Emit(vm.OpPushSelf)
	mbc.Emit(vm.OpReturn)
	table.Define(max.Build())

	dec := vm.NewMethodBuilder("dec", 0)
	dbc := dec.Bytecode()
	dbc.Emit(vm.OpPushSelf)
	dbc.EmitInt8(vm.OpPushSmallInt, 1)
	dbc.Emit(vm.OpSub)
	dbc.Emit(vm.OpReturn)
	table.Define(dec.Build())

	main := vm.NewMethodBuilder("main", 0)
	maxSite := main.AddCallSite("max:", 1)
	decSite := main.AddCallSite("dec", 0)
	bc := main.Bytecode()
	bc.EmitInt8(vm.OpPushSmallInt, 5)
	bc.EmitInt8(vm.OpPushSmallInt, 3)
	bc.EmitUint16(vm.OpSend, uint16(maxSite))
	bc.EmitUint16(vm.OpSend, uint16(decSite))
	bc.Emit(vm.OpReturn)
	table.Define(main.Build())

	return table
}
