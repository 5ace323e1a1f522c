package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack is a compact binary codec backed by github.com/vmihailenco/msgpack/v5.
// Struct fields use their msgpack tags, falling back to the field name.
type Msgpack struct{}

// Marshal encodes the value to MessagePack.
func (Msgpack) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

// Unmarshal decodes MessagePack data into v.
func (Msgpack) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// Name returns the unique name of the codec ("msgpack").
func (Msgpack) Name() string { return "msgpack" }
