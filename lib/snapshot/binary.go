package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/eKV/lib/writelog"
)

// Constants for the binary blob format
const (
	magicNum      = "EKVSNAP\x00" // File format identifier
	binaryVersion = 1             // Format version
)

// Bit flags for entries and log records
const (
	flagEncrypted  byte = 1 << 0
	flagCompressed byte = 1 << 1
	flagHasValue   byte = 1 << 2
)

// errTruncated is returned when a length prefix points past the end of the input
var errTruncated = errors.New("snapshot: truncated blob")

// NewBinarySerializer creates a new serializer using a compact custom binary format.
//
// Layout (all integers little endian):
//
//	magic[8] version[1]
//	entryCount[8] { keyLen[4] key createdAt[8] updatedAt[8] expiresAt[8] flags[1] valueLen[4] value }
//	encryptedCount[8] { keyLen[4] key }
//	logCount[8] { timestamp[8] op[1] keyLen[4] key ttl[8] flags[1] (valueLen[4] value)? }
//
// Times are unix nanoseconds, 0 encodes the zero time.
func NewBinarySerializer() Serializer {
	return &binarySerializerImpl{}
}

type binarySerializerImpl struct{}

func (b binarySerializerImpl) Name() string { return "binary" }

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(blob *Blob) ([]byte, error) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	w := &binWriter{w: bw}

	// Write file header
	w.raw([]byte(magicNum))
	w.u8(binaryVersion)

	// Write data entries
	w.u64(uint64(len(blob.Entries)))
	for _, item := range blob.Entries {
		w.str(item.Key)
		w.time(item.Entry.CreatedAt)
		w.time(item.Entry.UpdatedAt)
		w.time(item.Entry.ExpiresAt)

		var flags byte
		if item.Entry.Encrypted {
			flags |= flagEncrypted
		}
		if item.Entry.Compressed {
			flags |= flagCompressed
		}
		w.u8(flags)
		w.bytes(item.Entry.Value)
	}

	// Write encrypted key set
	w.u64(uint64(len(blob.EncryptedKeys)))
	for _, key := range blob.EncryptedKeys {
		w.str(key)
	}

	// Write log records
	w.u64(uint64(len(blob.Log)))
	for _, rec := range blob.Log {
		w.time(rec.Timestamp)
		w.u8(byte(rec.Op))
		w.str(rec.Key)
		w.u64(uint64(rec.Options.TTL))

		var flags byte
		if rec.Options.Encrypted {
			flags |= flagEncrypted
		}
		if rec.Options.Compressed {
			flags |= flagCompressed
		}
		if rec.Value != nil {
			flags |= flagHasValue
		}
		w.u8(flags)
		if rec.Value != nil {
			w.bytes(rec.Value)
		}
	}

	if w.err != nil {
		return nil, w.err
	}
	// Flush buffer to ensure all data is written
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// binWriter remembers the first error so the encoder can stay linear
type binWriter struct {
	w   io.Writer
	err error
}

func (w *binWriter) raw(p []byte) {
	if w.err == nil {
		_, w.err = w.w.Write(p)
	}
}

func (w *binWriter) u8(v uint8) { w.raw([]byte{v}) }

func (w *binWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.raw(b[:])
}

func (w *binWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.raw(b[:])
}

func (w *binWriter) bytes(p []byte) {
	w.u32(uint32(len(p)))
	w.raw(p)
}

func (w *binWriter) str(s string) { w.bytes([]byte(s)) }

func (w *binWriter) time(t time.Time) {
	if t.IsZero() {
		w.u64(0)
		return
	}
	w.u64(uint64(t.UnixNano()))
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Deserialize(data []byte, blob *Blob) error {
	r := &binReader{data: data}

	// Read and verify magic number
	if magic := r.raw(len(magicNum)); r.err == nil && string(magic) != magicNum {
		return fmt.Errorf("invalid blob format: magic number mismatch")
	}

	// Read and verify version
	if version := r.u8(); r.err == nil && version != binaryVersion {
		return fmt.Errorf("unsupported blob version: %d (expected %d)", version, binaryVersion)
	}

	// Read data entries
	count := r.count()
	entries := make([]KeyedEntry, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		var item KeyedEntry
		item.Key = r.str()
		item.Entry.CreatedAt = r.time()
		item.Entry.UpdatedAt = r.time()
		item.Entry.ExpiresAt = r.time()
		flags := r.u8()
		item.Entry.Encrypted = flags&flagEncrypted != 0
		item.Entry.Compressed = flags&flagCompressed != 0
		item.Entry.Value = r.bytes()
		entries = append(entries, item)
	}

	// Read encrypted key set
	count = r.count()
	encrypted := make([]string, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		encrypted = append(encrypted, r.str())
	}

	// Read log records
	count = r.count()
	records := make([]writelog.Record, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		var rec writelog.Record
		rec.Timestamp = r.time()
		rec.Op = writelog.Op(r.u8())
		rec.Key = r.str()
		rec.Options.TTL = time.Duration(r.u64())
		flags := r.u8()
		rec.Options.Encrypted = flags&flagEncrypted != 0
		rec.Options.Compressed = flags&flagCompressed != 0
		if flags&flagHasValue != 0 {
			rec.Value = r.bytes()
		}
		records = append(records, rec)
	}

	if r.err != nil {
		return r.err
	}
	if r.pos != len(r.data) {
		return fmt.Errorf("invalid blob format: %d trailing bytes", len(r.data)-r.pos)
	}

	blob.Entries = entries
	blob.EncryptedKeys = encrypted
	blob.Log = records
	return nil
}

// binReader reads from a byte slice and remembers the first error
type binReader struct {
	data []byte
	pos  int
	err  error
}

func (r *binReader) raw(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.pos < n {
		r.err = errTruncated
		return nil
	}
	p := r.data[r.pos : r.pos+n]
	r.pos += n
	return p
}

func (r *binReader) u8() uint8 {
	if p := r.raw(1); p != nil {
		return p[0]
	}
	return 0
}

func (r *binReader) u32() uint32 {
	if p := r.raw(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (r *binReader) u64() uint64 {
	if p := r.raw(8); p != nil {
		return binary.LittleEndian.Uint64(p)
	}
	return 0
}

// count reads an element count and rejects counts larger than the remaining input
func (r *binReader) count() int {
	n := r.u64()
	if r.err == nil && n > uint64(len(r.data)-r.pos) {
		r.err = errTruncated
		return 0
	}
	return int(n)
}

func (r *binReader) bytes() []byte {
	n := int(r.u32())
	p := r.raw(n)
	if p == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, p)
	return out
}

func (r *binReader) str() string { return string(r.raw(int(r.u32()))) }

func (r *binReader) time() time.Time {
	v := r.u64()
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(v))
}
