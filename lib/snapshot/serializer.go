package snapshot

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"strings"
)

// Serializer encodes a Blob for a BlobStore
type Serializer interface {
	// Name returns the name used in configuration ("json", "gob" or "binary")
	Name() string
	// Serialize encodes the blob
	Serialize(blob *Blob) ([]byte, error)
	// Deserialize decodes b into blob.
	// It returns an error if b is not a valid encoding.
	Deserialize(b []byte, blob *Blob) error
}

// ParseSerializer returns the serializer with the given name
func ParseSerializer(name string) (Serializer, error) {
	switch strings.ToLower(name) {
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "binary", "":
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q (expected json, gob or binary)", name)
	}
}

// --------------------------------------------------------------------------
// JSON
// --------------------------------------------------------------------------

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() Serializer {
	return &jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

func (j jsonSerializerImpl) Name() string { return "json" }

func (j jsonSerializerImpl) Serialize(blob *Blob) ([]byte, error) {
	return json.Marshal(blob)
}

func (j jsonSerializerImpl) Deserialize(b []byte, blob *Blob) error {
	return json.Unmarshal(b, blob)
}

// --------------------------------------------------------------------------
// GOB
// --------------------------------------------------------------------------

// NewGOBSerializer creates a new serializer using Go's binary gob format
func NewGOBSerializer() Serializer {
	return &gobSerializerImpl{}
}

type gobSerializerImpl struct{}

func (g gobSerializerImpl) Name() string { return "gob" }

func (g gobSerializerImpl) Serialize(blob *Blob) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(blob); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, blob *Blob) error {
	dec := gob.NewDecoder(bytes.NewReader(b))
	return dec.Decode(blob)
}
