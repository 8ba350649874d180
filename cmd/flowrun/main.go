package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/portflow/boundary"
	"github.com/wippyai/portflow/host"
	"github.com/wippyai/portflow/packet"
	"github.com/wippyai/portflow/port"
)

type options struct {
	wasmFile    string
	op          string
	witFile     string
	configFile  string
	logLevel    string
	inputJSON   string
	inputFile   string
	inputs      []string
	jsonOut     bool
	list        bool
	interactive bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (*options, error) {
	var o options
	fs := pflag.NewFlagSet("flowrun", pflag.ContinueOnError)
	fs.StringVar(&o.wasmFile, "wasm", "", "path to the component wasm file")
	fs.StringVar(&o.op, "op", "", "operation to invoke")
	fs.StringVar(&o.witFile, "wit", "", "WIT file declaring the component's operations")
	fs.StringVar(&o.configFile, "config", "", "YAML host configuration")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (overrides config)")
	fs.StringArrayVarP(&o.inputs, "input", "I", nil, "input as port=value; value is JSON or plain text (repeatable)")
	fs.StringVar(&o.inputJSON, "input-json", "", "inputs as a JSON port map")
	fs.StringVar(&o.inputFile, "input-file", "", "inputs as a JSON port map file; comments allowed")
	fs.BoolVar(&o.jsonOut, "json", false, "print outputs as JSON lines")
	fs.BoolVar(&o.list, "list", false, "list operations declared by --wit and exit")
	fs.BoolVarP(&o.interactive, "interactive", "i", false, "interactive mode with TUI")
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			fs.SetOutput(os.Stderr)
			fmt.Fprintln(os.Stderr, "Usage: flowrun --wasm <file.wasm> --op <name> [--input port=value]...")
			fmt.Fprintln(os.Stderr, "       flowrun --wasm <file.wasm> --wit <file.wit> -i  (interactive mode)")
			fs.PrintDefaults()
		}
		return nil, err
	}
	if o.wasmFile == "" && !o.list {
		return nil, fmt.Errorf("--wasm is required")
	}
	if o.list && o.witFile == "" {
		return nil, fmt.Errorf("--list needs --wit")
	}
	if !o.list && !o.interactive && o.op == "" {
		return nil, fmt.Errorf("--op is required")
	}
	return &o, nil
}

func run(args []string, stdout io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg := host.DefaultConfig()
	if o.configFile != "" {
		if cfg, err = host.LoadConfig(o.configFile); err != nil {
			return err
		}
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger := zap.NewNop()
	if !o.interactive {
		logger = newLogger(cfg.Level())
	}
	defer logger.Sync()
	host.SetLogger(logger.Named("host"))
	boundary.SetLogger(logger.Named("boundary"))
	port.SetLogger(logger.Named("port"))

	var sigs map[string]*boundary.Signature
	if o.witFile != "" {
		text, err := os.ReadFile(o.witFile)
		if err != nil {
			return fmt.Errorf("read wit: %w", err)
		}
		if sigs, err = boundary.ParseSignatures(string(text)); err != nil {
			return err
		}
	}

	if o.list {
		for _, name := range sortedNames(sigs) {
			fmt.Fprintln(stdout, sigs[name])
		}
		return nil
	}

	if o.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		if len(sigs) == 0 {
			return fmt.Errorf("interactive mode needs --wit to list operations")
		}
		return runInteractive(o.wasmFile, cfg, sigs)
	}

	inputs, err := collectInputs(o)
	if err != nil {
		return err
	}
	if sig, ok := sigs[o.op]; ok {
		if err := sig.CheckInputs(inputs); err != nil {
			return err
		}
	} else if sigs != nil {
		return fmt.Errorf("operation %q is not declared in %s", o.op, o.witFile)
	}

	ctx := context.Background()
	h, err := host.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create host: %w", err)
	}
	defer h.Close(ctx)

	mod, err := h.LoadFile(ctx, o.wasmFile)
	if err != nil {
		return err
	}
	inst, err := h.Instantiate(ctx, mod)
	if err != nil {
		return err
	}
	defer inst.Close(ctx)

	s, err := inst.Invoke(ctx, o.op, inputs)
	if err != nil {
		return fmt.Errorf("invoke %s: %w", o.op, err)
	}
	defer s.Close()

	failed, err := printStream(ctx, s, stdout, o.jsonOut)
	if err != nil {
		return err
	}
	if failed != "" {
		return fmt.Errorf("%s failed: %s", o.op, failed)
	}
	return nil
}

func newLogger(level zapcore.Level) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// collectInputs merges --input-file, --input-json and --input in that
// order; later sources win.
func collectInputs(o *options) (*packet.Map, error) {
	inputs := packet.NewMap()
	if o.inputFile != "" {
		data, err := os.ReadFile(o.inputFile)
		if err != nil {
			return nil, fmt.Errorf("read inputs: %w", err)
		}
		m, err := packet.ParseMapJSON(string(jsonc.ToJSON(data)))
		if err != nil {
			return nil, err
		}
		inputs.Merge(m)
	}
	if o.inputJSON != "" {
		m, err := packet.ParseMapJSON(o.inputJSON)
		if err != nil {
			return nil, err
		}
		inputs.Merge(m)
	}
	if len(o.inputs) > 0 {
		m, err := packet.ParseMapKV(quotePlain(o.inputs))
		if err != nil {
			return nil, err
		}
		inputs.Merge(m)
	}
	return inputs, nil
}

// quotePlain turns "port=text" items whose value is not JSON into JSON
// strings.
func quotePlain(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		name, value, ok := strings.Cut(item, "=")
		if ok && !json.Valid([]byte(value)) {
			quoted, _ := json.Marshal(value)
			item = name + "=" + string(quoted)
		}
		out[i] = item
	}
	return out
}

// printStream writes every wrapper of s. It returns the message of an
// <error> wrapper, if any.
func printStream(ctx context.Context, s *port.Stream, w io.Writer, asJSON bool) (string, error) {
	var failed string
	enc := json.NewEncoder(w)
	for {
		wr, ok, err := s.Next(ctx)
		if err != nil {
			return failed, err
		}
		if !ok {
			return failed, nil
		}
		if wr.Port == packet.PortError {
			failed = wr.Packet.Message()
		}
		if asJSON {
			if err := enc.Encode(wr); err != nil {
				return failed, err
			}
			continue
		}
		fmt.Fprintln(w, formatWrapper(wr))
	}
}

// formatWrapper renders a wrapper for humans, decoding success payloads.
func formatWrapper(w packet.Wrapper) string {
	if w.Packet.IsOK() {
		if v, err := packet.Deserialize[any](w.Packet); err == nil {
			if text, err := json.Marshal(v); err == nil {
				return w.Port + ": " + string(text)
			}
		}
	}
	return w.String()
}

func sortedNames(sigs map[string]*boundary.Signature) []string {
	names := make([]string, 0, len(sigs))
	for name := range sigs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
