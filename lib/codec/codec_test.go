package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// TestRoundTrip tests all option combinations on values without digits
func TestRoundTrip(t *testing.T) {
	p := New("")

	values := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("hello world"),
		[]byte("aaaabbbbbbbbbbbbccd"),
		[]byte(strings.Repeat("x", 1000)),
		[]byte("ünïcödé ääää ßßßßß"),
		{0x00, 0x00, 0x00, 0x00, 0xff, 0xfe},
	}

	for _, encrypt := range []bool{false, true} {
		for _, compress := range []bool{false, true} {
			for _, v := range values {
				stored := p.Encode(v, encrypt, compress)
				got, err := p.Decode(stored, encrypt, compress)
				if err != nil {
					t.Errorf("Decode(encrypt=%v, compress=%v, %q) failed: %v", encrypt, compress, v, err)
					continue
				}
				if !bytes.Equal(got, v) {
					t.Errorf("Round trip (encrypt=%v, compress=%v) = %q, want %q", encrypt, compress, got, v)
				}
			}
		}
	}
}

// TestEncryptedCompressedWithDigits tests that digits survive when obfuscation is on
func TestEncryptedCompressedWithDigits(t *testing.T) {
	p := New("secret")
	v := []byte("order-1234 has 0000000 items and 99999 notes")

	got, err := p.Decode(p.Encode(v, true, true), true, true)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(got, v) {
		t.Errorf("Expected %q, got %q", v, got)
	}
}

func TestEncryptHasNoDigits(t *testing.T) {
	p := New("k")
	out := p.Encrypt([]byte("0123456789 some value with digits 42"))
	for _, b := range out {
		if isDigit(b) {
			t.Fatalf("Encrypted text %q contains a digit", out)
		}
	}
}

func TestCompress(t *testing.T) {
	cases := map[string]string{
		"":              "",
		"abc":           "abc",
		"aaa":           "aaa",
		"aaaa":          "a4",
		"aaaaabbbc":     "a5bbbc",
		"xyyyyyyyyyyyz": "xy11z",
	}

	for in, want := range cases {
		if got := string(Compress([]byte(in))); got != want {
			t.Errorf("Compress(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestDecompressDigitAmbiguity documents the greedy digit handling
func TestDecompressDigitAmbiguity(t *testing.T) {
	got, err := Decompress(Compress([]byte("v2")))
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if string(got) != "vv" {
		t.Errorf("Expected ambiguous decode to %q, got %q", "vv", got)
	}
}

func TestDecodeCorrupted(t *testing.T) {
	p := New("")

	if _, err := p.Decode([]byte("not base32 !!"), true, false); !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode for corrupted ciphertext, got %v", err)
	}

	if _, err := Decompress([]byte("a99999999999999999999999")); !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode for oversized run, got %v", err)
	}
}

func TestEncodeDoesNotAlias(t *testing.T) {
	p := New("")
	v := []byte("value")
	stored := p.Encode(v, false, false)
	stored[0] = 'X'
	if v[0] != 'v' {
		t.Errorf("Encode must not alias its input")
	}
}
