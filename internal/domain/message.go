// Package domain contains wire entities and identifiers, no logic beyond
// construction and validation helpers.
package domain

import (
	"encoding/json"
	"errors"
)

type (
	RoomID   string
	ClientID string
)

const (
	ActionJoin   = "join"
	ActionLeave  = "leave"
	ActionUpdate = "update"
)

var (
	ErrEmptyAction = errors.New("empty action")
	ErrEmptyRoom   = errors.New("empty roomID")
)

// Message is one presence frame. Constructed by the sender, immutable after
// that, consumed once by the receiver. Data carries the occupancy count on
// update frames and is absent otherwise.
type Message struct {
	Action   string   `json:"action"`
	RoomID   RoomID   `json:"roomID"`
	ClientID ClientID `json:"clientID"`
	Data     *int     `json:"data,omitempty"`
}

// UpdateMessage builds the server-side occupancy broadcast frame.
func UpdateMessage(room RoomID, client ClientID, occupancy int) Message {
	return Message{
		Action:   ActionUpdate,
		RoomID:   room,
		ClientID: client,
		Data:     &occupancy,
	}
}

// DecodeMessage parses a frame leniently: unknown fields are ignored, only
// the action and room are checked. Callers drop frames that fail here, the
// protocol is tolerant of bad input.
func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	if m.Action == "" {
		return Message{}, ErrEmptyAction
	}
	if m.Action != ActionLeave && m.RoomID == "" {
		return Message{}, ErrEmptyRoom
	}
	return m, nil
}

// Occupancy returns the data payload, 0 when absent.
func (m Message) Occupancy() int {
	if m.Data == nil {
		return 0
	}
	return *m.Data
}
