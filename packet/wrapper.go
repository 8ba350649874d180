package packet

import "fmt"

// Wrapper is a packet tagged with the port it travels on.
type Wrapper struct {
	Port   string `json:"port"`
	Packet Packet `json:"payload"`
}

func NewWrapper(port string, p Packet) Wrapper {
	return Wrapper{Port: port, Packet: p}
}

// ErrorWrapper reports a component-wide failure on the reserved error port.
func ErrorWrapper(msg string) Wrapper {
	return Wrapper{Port: PortError, Packet: Error(msg)}
}

// StatusWrapper reports terminal status on the reserved status port.
func StatusWrapper(v any) Wrapper {
	return Wrapper{Port: PortStatus, Packet: Status(v)}
}

func (w Wrapper) String() string {
	return fmt.Sprintf("%s: %s", w.Port, w.Packet)
}
