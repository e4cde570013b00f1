package session

import (
	"bytes"
	"encoding/gob"
	"time"
)

// Codec serializes session values and creation time into the payload kept
// by the tiered store.
type Codec interface {
	// Decode decodes byte slice into the session creation time and values.
	Decode(data []byte) (createdAt time.Time, values map[string]any, err error)

	// Encode encodes the creation time and session values into a byte slice.
	Encode(createdAt time.Time, values map[string]any) (data []byte, err error)
}

// Ensure GobCodec implements Codec.
var _ Codec = GobCodec{}

// GobCodec is the default Codec. Custom value types must be registered with
// gob.Register before they can be stored.
type GobCodec struct{}

type gobData struct {
	CreatedAt time.Time
	Values    map[string]any
}

func (GobCodec) Encode(createdAt time.Time, values map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&gobData{CreatedAt: createdAt, Values: values}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec) Decode(data []byte) (time.Time, map[string]any, error) {
	var d gobData
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&d)
	if d.Values == nil {
		d.Values = make(map[string]any)
	}
	return d.CreatedAt, d.Values, err
}
