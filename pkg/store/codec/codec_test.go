package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte(strings.Repeat("compressible ", 200)),
	}

	for _, compression := range []Compression{None, Snappy, Zstd} {
		for _, checksums := range []bool{false, true} {
			c, err := New(compression, checksums)
			if err != nil {
				t.Fatalf("New(%v, %v) failed: %v", compression, checksums, err)
			}
			for _, p := range payloads {
				frame := c.Encode(p)
				got, err := c.Decode(frame)
				if err != nil {
					t.Fatalf("%v/%v: decode failed: %v", compression, checksums, err)
				}
				if got == nil {
					t.Errorf("%v/%v: decoded value must not be nil", compression, checksums)
				}
				if !bytes.Equal(got, p) {
					t.Errorf("%v/%v: expected %d bytes back, got %d", compression, checksums, len(p), len(got))
				}
			}
			c.Close()
		}
	}
}

func TestCodecCompresses(t *testing.T) {
	c, err := New(Zstd, false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	value := []byte(strings.Repeat("a", 4096))
	if frame := c.Encode(value); len(frame) >= len(value) {
		t.Errorf("expected zstd frame to be smaller than %d bytes, got %d", len(value), len(frame))
	}
}

func TestCodecDetectsCorruption(t *testing.T) {
	c, err := New(None, true)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	frame := c.Encode([]byte("precious"))
	frame[3] ^= 0xff

	if _, err := c.Decode(frame); !errors.Is(err, ErrChecksum) {
		t.Errorf("expected ErrChecksum, got %v", err)
	}

	if _, err := c.Decode(nil); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt for an empty frame, got %v", err)
	}
	if _, err := c.Decode([]byte{checksumFlag, 1, 2}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt for a truncated frame, got %v", err)
	}
	if _, err := c.Decode([]byte{0x0e, 1}); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("expected ErrUnknownCodec, got %v", err)
	}
}

func TestCodecReadsOtherSettings(t *testing.T) {
	writer, _ := New(Snappy, true)
	reader, _ := New(None, false)
	defer writer.Close()
	defer reader.Close()

	got, err := reader.Decode(writer.Encode([]byte("portable")))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(got) != "portable" {
		t.Errorf("expected 'portable', got %q", got)
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in       string
		expected Compression
		wantErr  bool
	}{
		{"", None, false},
		{"none", None, false},
		{"Snappy", Snappy, false},
		{" zstd ", Zstd, false},
		{"lz4", None, true},
	}
	for _, tc := range tests {
		got, err := ParseCompression(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrUnknownCodec) {
				t.Errorf("%q: expected ErrUnknownCodec, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.expected {
			t.Errorf("%q: expected %v, got %v (%v)", tc.in, tc.expected, got, err)
		}
		if got.String() != strings.ToLower(strings.TrimSpace(tc.in)) && tc.in != "" {
			t.Errorf("%q: unexpected String() %q", tc.in, got.String())
		}
	}
}
