package packet

import (
	"bytes"
	"encoding/hex"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Run("layout matches the wire format", func(t *testing.T) {
		got := Encode(7, TypeExec, "players")
		want, err := hex.DecodeString("11000000" + "07000000" + "02000000" + hex.EncodeToString([]byte("players")) + "0000")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("size counts utf-8 bytes of the body", func(t *testing.T) {
		body := "Привіт"
		got := Encode(1, TypeExec, body)
		assert.Len(t, got, HeaderSize+len(body)+2)
		assert.Equal(t, byte(len(body)+WrapperSize), got[0])
	})

	t.Run("empty body", func(t *testing.T) {
		got := Encode(1, TypeAuthResponse, "")
		assert.Equal(t, []byte{10, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 0, 0}, got)
	})

	t.Run("negative id", func(t *testing.T) {
		got := Encode(AuthFailedID, TypeAuthResponse, "")
		assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, got[4:8])
	})
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cases := []Packet{
		{ID: 1, Type: TypeAuth, Body: "password"},
		{ID: 2, Type: TypeExec, Body: "players"},
		{ID: 3, Type: TypeResponseValue, Body: "Players connected (2):\n-alice\n-bob"},
		{ID: AuthFailedID, Type: TypeAuthResponse, Body: ""},
		{ID: math.MaxInt32, Type: TypeResponseValue, Body: "Сервер запущено 🧟"},
		{ID: math.MinInt32, Type: TypeExec, Body: `servermsg "hello world"`},
		{ID: 0, Type: TypeResponseValue, Body: string(bytes.Repeat([]byte("x"), 8192))},
	}

	for _, p := range cases {
		b := Encode(p.ID, p.Type, p.Body)

		assert.Equal(t, p, Decode(b))

		parsed, err := Parse(b)
		require.NoError(t, err)
		assert.Equal(t, p, parsed)

		read, err := Read(bytes.NewReader(b))
		require.NoError(t, err)
		assert.Equal(t, p, read)
	}
}

func TestDecode_Lenient(t *testing.T) {
	t.Run("fewer than 12 bytes yields zero packet", func(t *testing.T) {
		assert.Equal(t, Packet{}, Decode(nil))
		assert.Equal(t, Packet{}, Decode([]byte{10, 0, 0, 0, 1, 0, 0, 0}))
	})

	t.Run("declared size beyond input yields zero packet", func(t *testing.T) {
		b := Encode(5, TypeResponseValue, "long response body")
		assert.Equal(t, Packet{}, Decode(b[:len(b)-4]))
	})

	t.Run("negative size yields zero packet", func(t *testing.T) {
		b := Encode(5, TypeResponseValue, "x")
		copy(b[0:4], []byte{0xd6, 0xff, 0xff, 0xff})
		assert.Equal(t, Packet{}, Decode(b))
	})

	t.Run("small size keeps header with empty body", func(t *testing.T) {
		b := []byte{8, 0, 0, 0, 4, 0, 0, 0, 0, 0, 0, 0}
		assert.Equal(t, Packet{ID: 4, Type: TypeResponseValue}, Decode(b))
	})

	t.Run("invalid utf-8 is dropped", func(t *testing.T) {
		b := Encode(1, TypeResponseValue, "ok\xff")
		assert.Equal(t, "ok", Decode(b).Body)
	})
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]struct {
		hex  string
		want error
	}{
		"short size prefix":     {"0a00", ErrTruncated},
		"negative size":         {"d6ffffff", ErrMalformed},
		"size below minimum":    {"09000000", ErrMalformed},
		"size above maximum":    {"01000001", ErrMalformed},
		"shorter than declared": {"0a00000011", ErrTruncated},
		"missing terminator":    {"0a000000111111112222222233330000", ErrMalformed},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			b, err := hex.DecodeString(tc.hex)
			require.NoError(t, err)

			_, err = Parse(b)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRead(t *testing.T) {
	t.Run("reads consecutive frames from one stream", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, Packet{ID: 1, Type: TypeResponseValue, Body: "first"}))
		require.NoError(t, Write(&buf, Packet{ID: 1, Type: TypeResponseValue, Body: "second"}))

		p, err := Read(&buf)
		require.NoError(t, err)
		assert.Equal(t, "first", p.Body)

		p, err = Read(&buf)
		require.NoError(t, err)
		assert.Equal(t, "second", p.Body)

		_, err = Read(&buf)
		assert.ErrorIs(t, err, io.EOF)
		assert.NotErrorIs(t, err, ErrTruncated)
	})

	t.Run("partial frame is truncated", func(t *testing.T) {
		b := Encode(1, TypeResponseValue, "cut short")
		_, err := Read(bytes.NewReader(b[:HeaderSize+2]))
		assert.ErrorIs(t, err, ErrTruncated)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("partial size prefix is truncated", func(t *testing.T) {
		_, err := Read(bytes.NewReader([]byte{0x0a, 0x00}))
		assert.ErrorIs(t, err, ErrTruncated)
	})
}
