package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/byfaith/byfaith/internal/shared"
	_ "github.com/byfaith/byfaith/testing"
)

func TestUIDRoundTrip(t *testing.T) {
	for _, id := range []int64{1, 42, 987654321} {
		decoded, err := DecodeUID(EncodeUID(id))
		require.NoError(t, err)
		require.Equal(t, id, decoded)
	}
}

func TestDecodeUIDRejectsGarbage(t *testing.T) {
	for _, uid := range []string{"", "!!!!", "not base64 at all", EncodeUID(0)} {
		_, err := DecodeUID(uid)
		require.ErrorIs(t, err, shared.ErrTokenInvalid, "uid %q", uid)
	}
}
