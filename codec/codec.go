// Package codec centralizes catalog and commit-log encoding.
//
// Persisted catalogs are self-describing: the codec name is stored in front of
// the payload, so files written with any built-in codec can be read back
// regardless of the currently configured default.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ErrUnknownCodec is returned when a frame names a codec that is not built in.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	case "msgpack":
		return Msgpack{}, true
	default:
		return nil, false
	}
}

// Names lists the built-in codec names.
func Names() []string {
	return []string{"json", "go-json", "msgpack"}
}

// Default is the codec used for newly written catalogs.
var Default Codec = GoJSON{}

// Frame encodes v with c behind a header of magic (uint32 little endian),
// the codec name length (uint8) and the codec name.
func Frame(magic uint32, c Codec, v any) ([]byte, error) {
	if c == nil {
		c = Default
	}

	name := c.Name()
	if len(name) > 255 {
		return nil, fmt.Errorf("codec: name %q too long", name)
	}

	payload, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec %s marshal failed: %w", name, err)
	}

	out := make([]byte, 0, 5+len(name)+len(payload))
	out = binary.LittleEndian.AppendUint32(out, magic)
	out = append(out, byte(len(name)))
	out = append(out, name...)

	return append(out, payload...), nil
}

// Unframe decodes a frame written by Frame into v and returns the codec that
// was recorded in it.
func Unframe(magic uint32, data []byte, v any) (Codec, error) {
	if len(data) < 5 {
		return nil, errors.New("codec: frame too short")
	}

	if got := binary.LittleEndian.Uint32(data); got != magic {
		return nil, fmt.Errorf("codec: invalid magic 0x%08x", got)
	}

	n := int(data[4])
	if len(data) < 5+n {
		return nil, errors.New("codec: truncated codec name")
	}

	name := string(data[5 : 5+n])

	c, ok := ByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}

	if err := c.Unmarshal(data[5+n:], v); err != nil {
		return nil, fmt.Errorf("codec %s unmarshal failed: %w", name, err)
	}

	return c, nil
}
