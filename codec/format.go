package codec

import "fmt"

// Format identifies the encoding of a success payload.
type Format uint8

const (
	FormatBinary Format = iota // B, CBOR bytes
	FormatValue                // R, in-memory Value tree
	FormatJSON                 // J, JSON text
)

func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatValue:
		return "value"
	case FormatJSON:
		return "json"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ParseFormat maps a format name back to its Format.
func ParseFormat(name string) (Format, bool) {
	switch name {
	case "binary", "b", "cbor", "messagepack":
		return FormatBinary, true
	case "value", "r", "raw":
		return FormatValue, true
	case "json", "j":
		return FormatJSON, true
	}
	return 0, false
}
