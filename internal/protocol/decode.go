package protocol

import (
	"bytes"
	"encoding/json"
	"io"
)

// decodeStrict unmarshals raw request bytes into a typed request value,
// rejecting unknown fields. Strictness is this layer's explicit contract,
// not a side effect of schema generation: a request carrying a field we do
// not know is a caller bug we refuse before touching any state.
func decodeStrict(raw []byte, into any) *Error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return Validationf("malformed request: %v", err)
	}
	// A second document after the first is as malformed as an unknown field.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Validationf("malformed request: trailing content")
	}
	return nil
}
