package boundary

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
)

// DefaultOutput names the single output port of a signature whose result
// is an unnamed type, as in "f: func() -> string".
const DefaultOutput = "out"

// PortSpec is a named port with its WIT type.
type PortSpec struct {
	Type     wit.Type
	Name     string
	TypeName string
}

// Signature describes one operation: its input and output ports.
type Signature struct {
	Name    string
	Inputs  []PortSpec
	Outputs []PortSpec
}

var funcPattern = regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

// ParseSignature parses a single function declaration.
func ParseSignature(text string) (*Signature, error) {
	sigs, err := parseFunctions(text)
	if err != nil {
		return nil, err
	}
	if len(sigs) != 1 {
		return nil, errors.ParseFailed("signature", text, fmt.Errorf("expected one function, found %d", len(sigs)))
	}
	return sigs[0], nil
}

// ParseSignatures extracts every function declaration from WIT text.
// Pattern: [export] name: func(params) -> results;
func ParseSignatures(witText string) (map[string]*Signature, error) {
	sigs, err := parseFunctions(witText)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Signature, len(sigs))
	for _, sig := range sigs {
		if _, dup := out[sig.Name]; dup {
			return nil, errors.ParseFailed("signature", sig.Name, fmt.Errorf("duplicate function"))
		}
		out[sig.Name] = sig
	}
	return out, nil
}

func parseFunctions(witText string) ([]*Signature, error) {
	var sigs []*Signature
	for _, match := range funcPattern.FindAllStringSubmatch(witText, -1) {
		sig := &Signature{Name: match[1]}

		inputs, err := parsePorts(match[2], "")
		if err != nil {
			return nil, err
		}
		sig.Inputs = inputs

		results := strings.TrimSpace(match[3])
		switch {
		case results == "" || results == "()":
		case strings.HasPrefix(results, "(") && strings.HasSuffix(results, ")"):
			outputs, err := parsePorts(results[1:len(results)-1], "")
			if err != nil {
				return nil, err
			}
			sig.Outputs = outputs
		default:
			outputs, err := parsePorts(results, DefaultOutput)
			if err != nil {
				return nil, err
			}
			sig.Outputs = outputs
		}
		sigs = append(sigs, sig)
	}
	if len(sigs) == 0 {
		return nil, errors.ParseFailed("signature", witText, fmt.Errorf("no functions found in WIT text"))
	}
	return sigs, nil
}

// parsePorts parses "name: type, ..." lists. An entry without a name
// is accepted only when defaultName is set and it is the sole entry.
func parsePorts(s, defaultName string) ([]PortSpec, error) {
	parts := splitParams(s)
	ports := make([]PortSpec, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		name, typStr, found := strings.Cut(p, ":")
		if !found {
			if defaultName == "" || len(parts) > 1 {
				return nil, errors.ParseFailed("port declaration", p, fmt.Errorf("missing port name"))
			}
			name, typStr = defaultName, p
		}
		name, typStr = strings.TrimSpace(name), strings.TrimSpace(typStr)
		if err := packet.ValidatePortName(name); err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, errors.ParseFailed("port declaration", p, fmt.Errorf("duplicate port %q", name))
		}
		seen[name] = true

		t, err := parseType(typStr)
		if err != nil {
			return nil, errors.ParseFailed("type", typStr, err)
		}
		ports = append(ports, PortSpec{Name: name, Type: t, TypeName: typStr})
	}
	return ports, nil
}

// splitParams splits a comma-separated list, handling nested parens and
// angle brackets.
func splitParams(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(', '<':
			depth++
			current.WriteRune(ch)
		case ')', '>':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					result = append(result, str)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}

	return result
}

// parseType parses the anonymous WIT types a port can carry. Primitives go
// through wit.ParseType; generic constructors are built here.
func parseType(s string) (wit.Type, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '<')
	if open < 0 {
		return wit.ParseType(s)
	}
	if !strings.HasSuffix(s, ">") {
		return nil, fmt.Errorf("unterminated type %q", s)
	}
	ctor := strings.TrimSpace(s[:open])
	args := splitParams(s[open+1 : len(s)-1])

	params := make([]wit.Type, 0, len(args))
	for _, a := range args {
		if a == "_" {
			params = append(params, nil)
			continue
		}
		t, err := parseType(a)
		if err != nil {
			return nil, err
		}
		params = append(params, t)
	}

	arity := func(n int) error {
		if len(params) != n {
			return fmt.Errorf("%s takes %d type arguments, got %d", ctor, n, len(params))
		}
		return nil
	}

	var kind wit.TypeDefKind
	switch ctor {
	case "list":
		if err := arity(1); err != nil {
			return nil, err
		}
		kind = &wit.List{Type: params[0]}
	case "option":
		if err := arity(1); err != nil {
			return nil, err
		}
		kind = &wit.Option{Type: params[0]}
	case "tuple":
		if len(params) == 0 {
			return nil, fmt.Errorf("empty tuple")
		}
		kind = &wit.Tuple{Types: params}
	case "result":
		switch len(params) {
		case 1:
			kind = &wit.Result{OK: params[0]}
		case 2:
			kind = &wit.Result{OK: params[0], Err: params[1]}
		default:
			return nil, arity(2)
		}
	default:
		return nil, fmt.Errorf("unsupported type constructor %q", ctor)
	}
	return &wit.TypeDef{Kind: kind}, nil
}

// Input returns the spec of an input port.
func (s *Signature) Input(name string) (PortSpec, bool) {
	return findPort(s.Inputs, name)
}

// Output returns the spec of an output port.
func (s *Signature) Output(name string) (PortSpec, bool) {
	return findPort(s.Outputs, name)
}

func findPort(ports []PortSpec, name string) (PortSpec, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return PortSpec{}, false
}

// OutputNames returns the declared output ports in declaration order.
func (s *Signature) OutputNames() []string {
	names := make([]string, len(s.Outputs))
	for i, p := range s.Outputs {
		names[i] = p.Name
	}
	return names
}

// CheckInputs verifies that every declared input is present and that
// Success payloads fit their port type. Failure packets pass unchecked;
// they are the sender's short-circuit for that port. Undeclared ports are
// ignored.
func (s *Signature) CheckInputs(inputs *packet.Map) error {
	for _, spec := range s.Inputs {
		p, ok := inputs.Get(spec.Name)
		if !ok {
			if isOptional(spec.Type) {
				continue
			}
			return errors.MissingInput(spec.Name)
		}
		if !p.IsOK() {
			continue
		}
		if err := checkPacket(spec, p); err != nil {
			return err
		}
	}
	return nil
}

func checkPacket(spec PortSpec, p packet.Packet) error {
	v, err := packetValue(p)
	if err != nil {
		if e, ok := err.(*errors.Error); ok && e.Port == "" {
			e.Port = spec.Name
		}
		return err
	}
	if detail := fits(v, spec.Type); detail != "" {
		return errors.WitTypeMismatch(errors.PhaseComponent, spec.Name, spec.TypeName, detail)
	}
	return nil
}

func (s *Signature) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteString(": func(")
	writePorts(&b, s.Inputs)
	b.WriteString(")")
	if len(s.Outputs) > 0 {
		b.WriteString(" -> (")
		writePorts(&b, s.Outputs)
		b.WriteString(")")
	}
	return b.String()
}

func writePorts(b *strings.Builder, ports []PortSpec) {
	for i, p := range ports {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteString(": ")
		b.WriteString(p.TypeName)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
