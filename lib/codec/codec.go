package codec

import (
	"bytes"
	"encoding/base32"
	"errors"
	"fmt"
	"strconv"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	DefaultKey = "ekv-obfuscation-key" // Key used when none is configured
	minRun     = 4                     // Shortest run rewritten by Compress
	maxRun     = 1 << 26               // Upper bound for a decoded run (64 MiB)
)

// ErrDecode is returned when a stored payload cannot be decoded
var ErrDecode = errors.New("codec: malformed payload")

// textEncoding maps obfuscated bytes to text.
// The alphabet contains no digits, so compressed ciphertext never collides with run lengths.
var textEncoding = base32.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdef").WithPadding(base32.NoPadding)

// --------------------------------------------------------------------------
// Pipeline
// --------------------------------------------------------------------------

// Pipeline applies the reversible write transforms (obfuscate, then compress)
// and their inverse on the read path (decompress, then de-obfuscate).
//
// Thread-safety: A Pipeline is immutable after creation and can be shared.
type Pipeline struct {
	key []byte
}

// New creates a pipeline using the given obfuscation key (empty = DefaultKey)
func New(key string) *Pipeline {
	if key == "" {
		key = DefaultKey
	}
	return &Pipeline{key: []byte(key)}
}

// Encode transforms a logical value into its stored payload.
// The returned slice never aliases value.
func (p *Pipeline) Encode(value []byte, encrypt, compress bool) []byte {
	out := value
	if encrypt {
		out = p.Encrypt(out)
	}
	if compress {
		out = Compress(out)
	}
	if !encrypt && !compress {
		out = bytes.Clone(value)
	}
	return out
}

// Decode transforms a stored payload back into its logical value.
// The flags must be the ones the payload was encoded with.
func (p *Pipeline) Decode(stored []byte, encrypted, compressed bool) ([]byte, error) {
	var (
		out = stored
		err error
	)
	if compressed {
		if out, err = Decompress(out); err != nil {
			return nil, err
		}
	}
	if encrypted {
		if out, err = p.Decrypt(out); err != nil {
			return nil, err
		}
	}
	if !encrypted && !compressed {
		out = bytes.Clone(stored)
	}
	return out, nil
}

// Encrypt XORs every byte with the repeating key and maps the result to text
func (p *Pipeline) Encrypt(value []byte) []byte {
	buf := make([]byte, len(value))
	for i, b := range value {
		buf[i] = b ^ p.key[i%len(p.key)]
	}

	out := make([]byte, textEncoding.EncodedLen(len(buf)))
	textEncoding.Encode(out, buf)
	return out
}

// Decrypt reverses Encrypt
func (p *Pipeline) Decrypt(text []byte) ([]byte, error) {
	buf := make([]byte, textEncoding.DecodedLen(len(text)))
	n, err := textEncoding.Decode(buf, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	buf = buf[:n]

	for i := range buf {
		buf[i] ^= p.key[i%len(p.key)]
	}
	return buf, nil
}

// --------------------------------------------------------------------------
// Run-length transform
// --------------------------------------------------------------------------

// Compress rewrites every maximal run of an identical byte longer than 3
// as <byte><decimal run length>. Shorter runs are kept literally.
//
// Note: Decompress treats any digit that follows another byte as a run length,
// so values containing such digits do not survive a Compress/Decompress round trip.
// Ciphertext produced by Encrypt never contains digits.
func Compress(value []byte) []byte {
	out := make([]byte, 0, len(value))

	for i := 0; i < len(value); {
		j := i
		for j < len(value) && value[j] == value[i] {
			j++
		}

		if run := j - i; run >= minRun {
			out = append(out, value[i])
			out = strconv.AppendInt(out, int64(run), 10)
		} else {
			out = append(out, value[i:j]...)
		}
		i = j
	}

	return out
}

// Decompress expands every <byte><digits> token into byte repeated digits times.
// Digits are consumed greedily.
func Decompress(text []byte) ([]byte, error) {
	out := make([]byte, 0, len(text))

	for i := 0; i < len(text); {
		c := text[i]

		j := i + 1
		for j < len(text) && isDigit(text[j]) {
			j++
		}

		// literal byte
		if j == i+1 {
			out = append(out, c)
			i++
			continue
		}

		n, err := strconv.Atoi(string(text[i+1 : j]))
		if err != nil || n > maxRun {
			return nil, fmt.Errorf("%w: invalid run length %q", ErrDecode, text[i+1:j])
		}
		out = append(out, bytes.Repeat([]byte{c}, n)...)
		i = j
	}

	return out, nil
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
