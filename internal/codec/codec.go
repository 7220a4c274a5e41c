// Package codec decodes inbound audio payloads into raw PCM bytes.
// Payloads arrive either base64-encoded (JSON transports) or already binary
// (binary websocket frames); decoding is pure and stateless.
package codec

import (
	"encoding/base64"
	"fmt"

	"github.com/satriahrh/swara/domain/entities"
)

// Decode converts an inbound audio payload to raw PCM bytes.
// A string payload is base64-decoded; a []byte payload passes through
// unchanged. Any other type fails with entities.ErrInvalidPayload.
func Decode(payload interface{}) ([]byte, error) {
	switch data := payload.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", entities.ErrDecode, err)
		}
		return decoded, nil
	case []byte:
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %T", entities.ErrInvalidPayload, payload)
	}
}
