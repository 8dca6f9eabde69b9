package persistence

import (
	"bytes"
	"encoding/gob"

	"github.com/jtolonen/weft/pkg/api"
)

func init() {
	// []string is the common shape of Append fields; register it once so
	// every store can round-trip it without per-caller setup.
	gob.Register([]string{})
}

// EncodeState serializes a state snapshot using encoding/gob. Concrete
// value types stored in the state must be gob-encodable; domain packages
// register their types with gob.Register in an init function.
func EncodeState(st api.State) ([]byte, error) {
	if st == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(map[string]any(st)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeState deserializes a state snapshot produced by EncodeState.
func DecodeState(data []byte) (api.State, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return nil, err
	}
	return api.State(m), nil
}

// EncodeProgress serializes an execution position for storage next to the
// state blob.
func EncodeProgress(p Progress) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeProgress deserializes a position produced by EncodeProgress.
func DecodeProgress(data []byte) (Progress, error) {
	if len(data) == 0 {
		return Progress{}, nil
	}
	var p Progress
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return Progress{}, err
	}
	return p, nil
}

// EncodeValue serializes an arbitrary gob-encodable value. It is used by
// the task queue for payloads.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	// Encode as interface{} so payloads decode into interface{} later.
	iv := v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue deserializes a value produced by EncodeValue.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var iv any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}
