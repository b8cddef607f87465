package channel

import (
	"encoding/base64"
	"encoding/json"
)

// Message statuses. An empty status means the message carries data only.
const (
	StatusOK  = "OK"
	StatusErr = "ERR"
)

// Message is one frame on the auth channel. On the wire it is JSON
// {status, binary, data}; binary payloads are base64-encoded and the status
// field is omitted when unset.
type Message struct {
	Status string
	Binary bool
	Data   []byte
}

// Text builds a text message.
func Text(data, status string) Message {
	return Message{Status: status, Data: []byte(data)}
}

// Bytes builds a binary message.
func Bytes(data []byte, status string) Message {
	return Message{Status: status, Binary: true, Data: data}
}

// Text returns the payload as a string.
func (m Message) Text() string {
	return string(m.Data)
}

// OK reports whether the message carries the OK status.
func (m Message) OK() bool {
	return m.Status == StatusOK
}

type wireMessage struct {
	Status string `json:"status,omitempty"`
	Binary bool   `json:"binary"`
	Data   string `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Status: m.Status, Binary: m.Binary}
	if m.Binary {
		w.Data = base64.StdEncoding.EncodeToString(m.Data)
	} else {
		w.Data = string(m.Data)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	m.Status = w.Status
	m.Binary = w.Binary
	if w.Binary {
		decoded, err := base64.StdEncoding.DecodeString(w.Data)
		if err != nil {
			return err
		}
		m.Data = decoded
	} else {
		m.Data = []byte(w.Data)
	}
	return nil
}
