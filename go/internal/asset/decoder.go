package asset

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	kgzip "github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/mcdev12/caseroll/go/internal/metrics"
	"github.com/rs/zerolog/log"
)

// DefaultMaxDecodedSize bounds how far a single payload may inflate.
const DefaultMaxDecodedSize = 16 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Codec identifies a payload encoding.
type Codec string

const (
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
	CodecJSON Codec = "json"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Sniff detects the codec of a payload from its leading bytes.
func Sniff(payload []byte) (Codec, bool) {
	switch {
	case bytes.HasPrefix(payload, gzipMagic):
		return CodecGzip, true
	case bytes.HasPrefix(payload, zstdMagic):
		return CodecZstd, true
	}
	trimmed := bytes.TrimLeft(payload, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return CodecJSON, true
	}
	return "", false
}

// Decompressor turns a compressed stream into a plain one.
type Decompressor interface {
	Name() string
	Codec() Codec
	NewReader(r io.Reader) (io.ReadCloser, error)
}

type streamingGzip struct{}

func (streamingGzip) Name() string { return "klauspost-gzip" }
func (streamingGzip) Codec() Codec { return CodecGzip }
func (streamingGzip) NewReader(r io.Reader) (io.ReadCloser, error) {
	return kgzip.NewReader(r)
}

type stdlibGzip struct{}

func (stdlibGzip) Name() string { return "stdlib-gzip" }
func (stdlibGzip) Codec() Codec { return CodecGzip }
func (stdlibGzip) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

type streamingZstd struct{}

func (streamingZstd) Name() string { return "klauspost-zstd" }
func (streamingZstd) Codec() Codec { return CodecZstd }
func (streamingZstd) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// StreamingGzip is the preferred gzip decompressor.
func StreamingGzip() Decompressor { return streamingGzip{} }

// FallbackGzip is the standard library gzip decompressor.
func FallbackGzip() Decompressor { return stdlibGzip{} }

// StreamingZstd decompresses zstd payloads.
func StreamingZstd() Decompressor { return streamingZstd{} }

// DefaultDecompressors returns the decompressors in preference order.
func DefaultDecompressors() []Decompressor {
	return []Decompressor{StreamingGzip(), FallbackGzip(), StreamingZstd()}
}

// Decoder decompresses and parses animation payloads. Decompressors are tried
// in order; a failing one falls through to the next for the same codec.
type Decoder struct {
	decompressors []Decompressor
	maxSize       int64
}

// NewDecoder builds a decoder over an explicit decompressor chain. An empty
// chain is valid and fails every compressed payload with ErrNoDecompressor.
func NewDecoder(maxSize int64, decompressors ...Decompressor) *Decoder {
	if maxSize <= 0 {
		maxSize = DefaultMaxDecodedSize
	}
	return &Decoder{decompressors: decompressors, maxSize: maxSize}
}

// DefaultDecoder returns a decoder using DefaultDecompressors.
func DefaultDecoder() *Decoder {
	return NewDecoder(DefaultMaxDecodedSize, DefaultDecompressors()...)
}

// Decode turns a raw payload into a Document.
func (d *Decoder) Decode(key int, payload []byte) (*Document, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveDecodeSeconds(time.Since(start).Seconds())
	}()

	codec, ok := Sniff(payload)
	if !ok {
		metrics.RecordDecodeFailure("unsupported_codec")
		return nil, &DecodeError{Key: key, Reason: "unsupported codec", Err: ErrUnsupportedCodec}
	}

	if codec == CodecJSON {
		return d.parse(key, payload)
	}

	var (
		tried   int
		lastErr error
	)
	for _, dc := range d.decompressors {
		if dc.Codec() != codec {
			continue
		}
		tried++

		data, err := d.inflate(dc, payload)
		if err != nil {
			log.Debug().
				Err(err).
				Int("asset_key", key).
				Str("decompressor", dc.Name()).
				Msg("decompressor failed, trying next")
			lastErr = err
			continue
		}
		return d.parse(key, data)
	}

	if tried == 0 {
		metrics.RecordDecodeFailure("no_decompressor")
		return nil, &DecodeError{Key: key, Reason: fmt.Sprintf("no decompressor for %s", codec), Err: ErrNoDecompressor}
	}
	metrics.RecordDecodeFailure("corrupt_payload")
	return nil, &DecodeError{Key: key, Reason: "corrupt payload", Err: lastErr}
}

func (d *Decoder) inflate(dc Decompressor, payload []byte) ([]byte, error) {
	r, err := dc.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, d.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > d.maxSize {
		return nil, ErrPayloadTooLarge
	}
	return data, nil
}

func (d *Decoder) parse(key int, data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		metrics.RecordDecodeFailure("invalid_document")
		return nil, &DecodeError{Key: key, Reason: "invalid document", Err: err}
	}
	doc.Key = key
	doc.Raw = data
	return &doc, nil
}
