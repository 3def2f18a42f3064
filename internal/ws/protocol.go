package ws

import (
	"encoding/json"
	"fmt"
)

// Message types pushed to clients.
const (
	TypeEnvironmentsAll       = "ENV_RECV_ALL"
	TypeServersAll            = "SERVERS_RECV_ALL"
	TypeServersForEnvironment = "SERVERS_RECV_FOR_ENV"
	TypeServerError           = "ERR_SERVER"
)

// Invocation is a client request: a command name and its positional arguments.
type Invocation struct {
	Command string            `json:"command"`
	Args    []json.RawMessage `json:"args"`
}

// Message carries a typed payload to clients.
type Message[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

// ErrorMessage reports a failed command to the client that issued it.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Command enumerates the operations a client may invoke.
type Command int

const (
	CommandCreateNewEnvironment Command = iota + 1
	CommandRemoveEnvironment
	CommandGetAllEnvironments
	CommandCreateNewServer
	CommandRemoveServer
	CommandUpdateServer
	CommandGetAllServers
	CommandGetServersForEnvironment
)

var commandNames = map[Command]string{
	CommandCreateNewEnvironment:     "CreateNewEnvironment",
	CommandRemoveEnvironment:        "RemoveEnvironment",
	CommandGetAllEnvironments:       "GetAllEnvironments",
	CommandCreateNewServer:          "CreateNewServer",
	CommandRemoveServer:             "RemoveServer",
	CommandUpdateServer:             "UpdateServer",
	CommandGetAllServers:            "GetAllServers",
	CommandGetServersForEnvironment: "GetServersForEnvironment",
}

var commandsByName = func() map[string]Command {
	out := make(map[string]Command, len(commandNames))
	for cmd, name := range commandNames {
		out[name] = cmd
	}
	return out
}()

// ParseCommand maps a wire name to its Command.
func ParseCommand(name string) (Command, bool) {
	cmd, ok := commandsByName[name]
	return cmd, ok
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// Mutating reports whether a successful run of the command triggers a broadcast.
func (c Command) Mutating() bool {
	switch c {
	case CommandCreateNewEnvironment, CommandRemoveEnvironment,
		CommandCreateNewServer, CommandRemoveServer, CommandUpdateServer:
		return true
	}
	return false
}

// decodeArgs unmarshals positional arguments into dst, requiring an exact count.
func decodeArgs(cmd Command, args []json.RawMessage, dst ...any) error {
	if len(args) != len(dst) {
		return fmt.Errorf("%s expects %d argument(s), got %d", cmd, len(dst), len(args))
	}
	for i, raw := range args {
		if err := json.Unmarshal(raw, dst[i]); err != nil {
			return fmt.Errorf("%s argument %d is invalid: %w", cmd, i+1, err)
		}
	}
	return nil
}

func encodeMessage[T any](msgType string, data T) ([]byte, error) {
	return json.Marshal(Message[T]{Type: msgType, Data: data})
}

func encodeError(message string) ([]byte, error) {
	return json.Marshal(ErrorMessage{Type: TypeServerError, Message: message})
}
