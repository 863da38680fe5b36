package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 form used on the wire (millisecond
// precision, UTC).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// localTimestampLayout accepts zone-less timestamps some servers emit.
const localTimestampLayout = "2006-01-02T15:04:05.999999999"

// envelope is the JSON shape shared by every message kind.
type envelope struct {
	Type      Type    `json:"type"`
	RoomID    string  `json:"roomId"`
	Sender    string  `json:"sender"`
	Content   string  `json:"content"`
	Timestamp *string `json:"timestamp,omitempty"`
}

// Encode marshals m into one text frame.
func Encode(m Message) ([]byte, error) {
	var env envelope
	switch msg := m.(type) {
	case Join:
		env = envelope{Type: TypeJoin, RoomID: msg.RoomID, Sender: msg.Sender, Content: msg.Content}
	case Leave:
		env = envelope{Type: TypeLeave, RoomID: msg.RoomID, Sender: msg.Sender, Content: msg.Content}
	case Chat:
		env = envelope{Type: TypeChat, RoomID: msg.RoomID, Sender: msg.Sender, Content: msg.Content}
		if !msg.Timestamp.IsZero() {
			ts := msg.Timestamp.UTC().Format(TimestampLayout)
			env.Timestamp = &ts
		}
	case RoomExpired:
		env = envelope{Type: TypeRoomExpired, RoomID: msg.RoomID, Sender: msg.Sender, Content: msg.Content}
	case nil:
		return nil, fmt.Errorf("encode: nil message")
	default:
		return nil, fmt.Errorf("encode: unsupported message %T", m)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", env.Type, err)
	}
	return data, nil
}

// Decode parses one text frame into its message variant. Unknown types are
// reported as ErrUnknownType rather than ignored.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Kind: ErrMalformed, Err: err}
	}

	switch env.Type {
	case TypeJoin:
		if err := requireFields(env, "roomId", "sender"); err != nil {
			return nil, err
		}
		return Join{RoomID: env.RoomID, Sender: env.Sender, Content: env.Content}, nil

	case TypeLeave:
		if err := requireFields(env, "roomId", "sender"); err != nil {
			return nil, err
		}
		return Leave{RoomID: env.RoomID, Sender: env.Sender, Content: env.Content}, nil

	case TypeChat:
		if err := requireFields(env, "roomId", "sender", "content"); err != nil {
			return nil, err
		}
		msg := Chat{RoomID: env.RoomID, Sender: env.Sender, Content: env.Content}
		if env.Timestamp != nil && *env.Timestamp != "" {
			ts, err := parseTimestamp(*env.Timestamp)
			if err != nil {
				return nil, &DecodeError{Kind: ErrInvalidField, Type: string(env.Type), Field: "timestamp", Err: err}
			}
			msg.Timestamp = ts
		}
		return msg, nil

	case TypeRoomExpired:
		return RoomExpired{RoomID: env.RoomID, Sender: env.Sender, Content: env.Content}, nil

	case "":
		return nil, &DecodeError{Kind: ErrMissingField, Field: "type"}

	default:
		return nil, &DecodeError{Kind: ErrUnknownType, Type: string(env.Type)}
	}
}

func requireFields(env envelope, fields ...string) error {
	for _, field := range fields {
		var value string
		switch field {
		case "roomId":
			value = env.RoomID
		case "sender":
			value = env.Sender
		case "content":
			value = env.Content
		}
		if value == "" {
			return &DecodeError{Kind: ErrMissingField, Type: string(env.Type), Field: field}
		}
	}
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.ParseInLocation(localTimestampLayout, s, time.UTC)
}
