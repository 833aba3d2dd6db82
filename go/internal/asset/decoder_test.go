package asset

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenDecompressor struct{ codec Codec }

func (b brokenDecompressor) Name() string { return "broken" }
func (b brokenDecompressor) Codec() Codec { return b.codec }
func (b brokenDecompressor) NewReader(io.Reader) (io.ReadCloser, error) {
	return nil, errors.New("decompressor unavailable")
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    Codec
		ok      bool
	}{
		{"gzip", []byte{0x1f, 0x8b, 0x08, 0x00}, CodecGzip, true},
		{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}, CodecZstd, true},
		{"json", []byte("  {\"v\":1}"), CodecJSON, true},
		{"png", []byte{0x89, 'P', 'N', 'G'}, "", false},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Sniff(tt.payload)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Gzip(t *testing.T) {
	doc, err := DefaultDecoder().Decode(5, gzipped(t, lottieJSON("heart")))
	require.NoError(t, err)

	assert.Equal(t, 5, doc.Key)
	assert.Equal(t, "heart", doc.Name)
	assert.Equal(t, 60.0, doc.FrameRate)
	assert.Equal(t, 512.0, doc.Width)
	assert.Len(t, doc.Layers, 1)
	assert.Equal(t, 3*time.Second, doc.Duration())
	assert.JSONEq(t, string(lottieJSON("heart")), string(doc.Raw))
}

func TestDecode_Zstd(t *testing.T) {
	doc, err := DefaultDecoder().Decode(9, zstdCompressed(t, lottieJSON("ring")))
	require.NoError(t, err)
	assert.Equal(t, "ring", doc.Name)
}

func TestDecode_PlainJSON(t *testing.T) {
	doc, err := NewDecoder(0).Decode(2, lottieJSON("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", doc.Name)
}

func TestDecode_FallsThroughToNextDecompressor(t *testing.T) {
	dec := NewDecoder(0, brokenDecompressor{codec: CodecGzip}, FallbackGzip())

	doc, err := dec.Decode(1, gzipped(t, lottieJSON("fallback")))
	require.NoError(t, err)
	assert.Equal(t, "fallback", doc.Name)
}

func TestDecode_NoDecompressor(t *testing.T) {
	dec := NewDecoder(0)

	_, err := dec.Decode(1, gzipped(t, lottieJSON("x")))
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.ErrorIs(t, err, ErrNoDecompressor)
	assert.Equal(t, 1, decodeErr.Key)
}

func TestDecode_Failures(t *testing.T) {
	truncated := gzipped(t, lottieJSON("cut"))
	truncated = truncated[:len(truncated)/2]

	tests := []struct {
		name    string
		payload []byte
		target  error
	}{
		{"unsupported codec", []byte("GIF89a"), ErrUnsupportedCodec},
		{"truncated gzip", truncated, nil},
		{"compressed non-json", gzipped(t, []byte("not json at all")), nil},
		{"json array", []byte(`{"layers": 3}`), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DefaultDecoder().Decode(4, tt.payload)
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "got %v", err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestDecode_TooLarge(t *testing.T) {
	dec := NewDecoder(64, DefaultDecompressors()...)

	_, err := dec.Decode(1, gzipped(t, lottieJSON("a-name-long-enough-to-exceed-the-limit")))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}
