package frame

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"sdnctl/internal/model"
)

func TestEncodeDecode_ShortPayloadIsNotPadded(t *testing.T) {
	t.Parallel()

	src := model.MustParseMAC("00:00:00:00:00:01")
	dst := model.MustParseMAC("00:00:00:00:00:02")
	p, err := model.NewPacket(src, dst, []byte("hi"))
	require.NoError(t, err)

	b, err := Encode(p)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(b), 60)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, src, got.Src())
	require.Equal(t, dst, got.Dst())
	require.Equal(t, "hi", string(got.Payload()))
}

func TestEncode_RejectsOversizedPayload(t *testing.T) {
	t.Parallel()

	p, err := model.NewPacket(model.MustParseMAC("00:00:00:00:00:01"), model.MustParseMAC("00:00:00:00:00:02"), make([]byte, MaxPayload+1))
	require.NoError(t, err)

	_, err = Encode(p)
	var perr *model.ProtocolError
	require.True(t, errors.As(err, &perr), "err=%v", err)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte{1, 2, 3})
	var perr *model.ProtocolError
	require.True(t, errors.As(err, &perr), "err=%v", err)
}
