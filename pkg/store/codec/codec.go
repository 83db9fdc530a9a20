// Package codec frames values written by the persistent store: an optional
// compression pass and an optional xxhash64 checksum trailer.
//
// Frame layout:
//
//	header (1 byte) | payload | checksum (8 bytes, big endian, optional)
//
// The low nibble of the header names the compression; bit 0x80 marks a
// checksum trailer computed over header and payload. Decoding reads the header,
// so frames written under different settings stay readable.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrUnknownCodec is returned when an unsupported compression codec is specified
	ErrUnknownCodec = errors.New("unknown compression codec")

	// ErrChecksum is returned when a frame's checksum does not match its contents
	ErrChecksum = errors.New("value checksum mismatch")

	// ErrCorrupt is returned when a frame cannot be decoded
	ErrCorrupt = errors.New("corrupt value frame")
)

// Compression selects the compression applied to payloads
type Compression uint8

const (
	// None stores payloads as-is
	None Compression = iota
	// Snappy compresses payloads with snappy
	Snappy
	// Zstd compresses payloads with zstd
	Zstd
)

const (
	checksumFlag = 0x80
	codecMask    = 0x0f
	checksumSize = 8
)

// String returns the configuration name of the compression
func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression converts a configuration name into a Compression
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return None, nil
	case "snappy":
		return Snappy, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
}

// Codec encodes and decodes value frames. It is safe for concurrent use.
type Codec struct {
	compression Compression
	checksums   bool

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
}

// New creates a codec that writes frames with the given compression, adding a
// checksum trailer when checksums is set
func New(compression Compression, checksums bool) (*Codec, error) {
	if compression > Zstd {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, compression)
	}

	zstdEncoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ZSTD encoder: %w", err)
	}

	zstdDecoder, err := zstd.NewReader(nil)
	if err != nil {
		zstdEncoder.Close()
		return nil, fmt.Errorf("failed to create ZSTD decoder: %w", err)
	}

	return &Codec{
		compression: compression,
		checksums:   checksums,
		zstdEncoder: zstdEncoder,
		zstdDecoder: zstdDecoder,
	}, nil
}

// Compression returns the compression used for new frames
func (c *Codec) Compression() Compression {
	return c.compression
}

// Encode frames value
func (c *Codec) Encode(value []byte) []byte {
	header := byte(c.compression)
	if c.checksums {
		header |= checksumFlag
	}

	frame := make([]byte, 1, 1+len(value)+checksumSize)
	frame[0] = header

	switch c.compression {
	case Snappy:
		frame = append(frame, snappy.Encode(nil, value)...)
	case Zstd:
		frame = c.zstdEncoder.EncodeAll(value, frame)
	default:
		frame = append(frame, value...)
	}

	if c.checksums {
		frame = binary.BigEndian.AppendUint64(frame, xxhash.Sum64(frame))
	}
	return frame
}

// Decode verifies and unpacks a frame produced by Encode
func (c *Codec) Decode(frame []byte) ([]byte, error) {
	if len(frame) < 1 {
		return nil, ErrCorrupt
	}
	header := frame[0]

	body := frame
	if header&checksumFlag != 0 {
		if len(frame) < 1+checksumSize {
			return nil, ErrCorrupt
		}
		body = frame[:len(frame)-checksumSize]
		expected := binary.BigEndian.Uint64(frame[len(frame)-checksumSize:])
		if xxhash.Sum64(body) != expected {
			return nil, ErrChecksum
		}
	}
	payload := body[1:]

	switch Compression(header & codecMask) {
	case None:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	case Snappy:
		out, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return nonNil(out), nil
	case Zstd:
		out, err := c.zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return nonNil(out), nil
	default:
		return nil, fmt.Errorf("%w: header %#x", ErrUnknownCodec, header)
	}
}

// Close releases the zstd encoder and decoder
func (c *Codec) Close() {
	c.zstdEncoder.Close()
	c.zstdDecoder.Close()
}

// nonNil keeps empty values distinguishable from missing ones
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
