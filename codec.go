package tieredsession

// Codec transforms payloads on their way into and out of the record store.
// It is the hook for payload encryption or compression; the store does not
// ship a concrete algorithm.
type Codec interface {
	// Encode is applied to the caller's payload before it is stored.
	Encode(data []byte) ([]byte, error)

	// Decode reverses Encode on a payload read back from storage.
	Decode(data []byte) ([]byte, error)
}

// Ensure identityCodec implements Codec.
var _ Codec = identityCodec{}

// identityCodec stores payloads unchanged.
type identityCodec struct{}

func (identityCodec) Encode(data []byte) ([]byte, error) { return data, nil }

func (identityCodec) Decode(data []byte) ([]byte, error) { return data, nil }
