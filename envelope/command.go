package envelope

import "fmt"

// Command identifies the kind of an envelope.
type Command uint8

const (
	// SendMessage is a delivery from the broker to a peer. It is the zero value
	// so that listeners registered without an explicit command receive deliveries.
	SendMessage Command = iota
	RequestRegistry
	ResponseRegistry
	UnicastMessage
	MulticastMessage
)

var commandWire = [...]string{
	SendMessage:      "SENDMSG",
	RequestRegistry:  "REQREG",
	ResponseRegistry: "RESREG",
	UnicastMessage:   "UNICASTMSG",
	MulticastMessage: "MULTICASTMSG",
}

// Commands returns every known command in declaration order.
func Commands() []Command {
	return []Command{SendMessage, RequestRegistry, ResponseRegistry, UnicastMessage, MulticastMessage}
}

// ParseCommand maps a wire string to its Command.
func ParseCommand(s string) (Command, bool) {
	for _, c := range Commands() {
		if commandWire[c] == s {
			return c, true
		}
	}
	return 0, false
}

// Valid reports whether c is one of the known commands.
func (c Command) Valid() bool {
	return int(c) < len(commandWire)
}

func (c Command) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Command(%d)", uint8(c))
	}
	return commandWire[c]
}

// MarshalText implements encoding.TextMarshaler
func (c Command) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("envelope: unknown command %d", uint8(c))
	}
	return []byte(commandWire[c]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Command) UnmarshalText(text []byte) error {
	cmd, ok := ParseCommand(string(text))
	if !ok {
		return fmt.Errorf("envelope: unknown command %q", text)
	}
	*c = cmd
	return nil
}
