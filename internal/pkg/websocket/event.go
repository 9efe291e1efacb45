package websocket

import (
	"encoding/json"
	"fmt"
)

// Server to client event names
const (
	EventNewMessage = "new_msg"
	EventNewChat    = "new_chat"
	EventChatSeen   = "chat_seen"
)

// Client to server control names
const (
	ControlSwitchChat = "switch-chat"
)

// Event is the envelope written to and read from a session: {"event": name, "data": {...}}
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent encodes payload as the event data
func NewEvent(name string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s payload: %w", name, err)
	}
	return Event{Name: name, Data: data}, nil
}

// Encode returns the wire form of the event
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// SwitchChat is the payload of the switch-chat control. ChatID 0 leaves the active room.
type SwitchChat struct {
	ChatID     int64 `json:"chatId"`
	PrevChatID int64 `json:"prevChatId,omitempty"`
}
