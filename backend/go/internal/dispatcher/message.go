package dispatcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// WorkType is the discriminator carried by every work message.
type WorkType string

const (
	WorkExternal WorkType = "EXTERNAL"
	WorkCross    WorkType = "CROSS"
	WorkSplit    WorkType = "SPLIT"
	WorkTrain    WorkType = "TRAIN"
	WorkPredict  WorkType = "PREDICT"
)

// Valid reports whether t is a known work type.
func (t WorkType) Valid() bool {
	switch t {
	case WorkExternal, WorkCross, WorkSplit, WorkTrain, WorkPredict:
		return true
	}
	return false
}

const (
	keyTaskID = "taskId"
	keyType   = "type"
)

var (
	ErrInvalidParams = errors.New("dispatcher: invalid work parameters")
	ErrTaskNotQueued = errors.New("dispatcher: task is not queued")
	ErrMissingType   = errors.New("dispatcher: missing or unknown work type")
	ErrMalformed     = errors.New("dispatcher: malformed work message")
)

// Params is the operation-specific parameter bag. Values are limited to
// strings, booleans, numbers and nil.
type Params map[string]any

// Validate checks keys and value kinds.
func (p Params) Validate() error {
	for k, v := range p {
		if k == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidParams)
		}
		if !isPrimitive(v) {
			return fmt.Errorf("%w: %q has unsupported type %T", ErrInvalidParams, k, v)
		}
	}
	return nil
}

// String returns the string value stored under key, or "".
func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Float returns the numeric value stored under key.
func (p Params) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

// WorkMessage references a persisted task. NotBefore travels out of band
// (a broker header or a sorted-set score), not in the JSON body.
type WorkMessage struct {
	TaskID    string
	Type      WorkType
	Params    Params
	NotBefore time.Time
}

// MarshalJSON flattens the message into {"taskId", "type", ...params}.
func (m WorkMessage) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(m.Params)+2)
	for k, v := range m.Params {
		flat[k] = v
	}
	flat[keyTaskID] = m.TaskID
	flat[keyType] = m.Type
	return json.Marshal(flat)
}

// UnmarshalJSON reverses MarshalJSON. Integral numbers decode as int64.
func (m *WorkMessage) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var flat map[string]any
	if err := dec.Decode(&flat); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	id, _ := flat[keyTaskID].(string)
	if id == "" {
		return fmt.Errorf("%w: missing %s", ErrMalformed, keyTaskID)
	}
	typ, _ := flat[keyType].(string)
	delete(flat, keyTaskID)
	delete(flat, keyType)

	params := make(Params, len(flat))
	for k, v := range flat {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				params[k] = i
				continue
			}
			f, err := n.Float64()
			if err != nil {
				return fmt.Errorf("%w: %q: %v", ErrMalformed, k, err)
			}
			params[k] = f
			continue
		}
		params[k] = v
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	m.TaskID = id
	m.Type = WorkType(typ)
	m.Params = params
	return nil
}

// Decode parses a JSON work message body.
func Decode(body []byte) (WorkMessage, error) {
	var m WorkMessage
	err := m.UnmarshalJSON(body)
	return m, err
}
