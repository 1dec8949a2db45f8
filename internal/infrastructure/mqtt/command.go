package mqtt

import (
	"encoding/json"
	"fmt"
)

// Command actions accepted on the command topic.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionStatus = "status"
)

// Command is a request received on the command topic.
type Command struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// ParseCommand decodes and validates a command payload.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	switch cmd.Action {
	case ActionStart, ActionStop, ActionStatus:
		return cmd, nil
	case "":
		return Command{}, fmt.Errorf("%w: action is required", ErrInvalidCommand)
	default:
		return Command{}, fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, cmd.Action)
	}
}
