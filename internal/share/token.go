package share

import (
	"errors"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
)

var errMalformedToken = errors.New("malformed share token")

// EncodeToken renders a share ID as the base58 token used in share links.
func EncodeToken(id uuid.UUID) string {
	return base58.Encode(id[:])
}

// DecodeToken parses a token produced by EncodeToken.
func DecodeToken(token string) (uuid.UUID, error) {
	raw := base58.Decode(token)
	if len(raw) != 16 {
		return uuid.Nil, errMalformedToken
	}
	return uuid.FromBytes(raw)
}
