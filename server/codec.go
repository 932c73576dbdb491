package server

import "github.com/chazu/hintbridge/wire"

// CodecName is the content subtype of RunService messages.
const CodecName = "cbor"

// Codec encodes RunService messages as canonical CBOR. It serves as a
// Connect codec and as a gRPC codec.
type Codec struct{}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(v any) ([]byte, error) { return wire.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return wire.Unmarshal(data, v) }
