package snapshot

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/eKV/lib/db"
)

// Format is a human-readable export format
type Format string

const (
	FormatStructured Format = "structured" // JSON array of records
	FormatDelimited  Format = "delimited"  // CSV with header, all fields quoted
	FormatPlain      Format = "plain"      // one "key = value" line per record
)

// plainSeparator separates key and value in the plain format
const plainSeparator = " = "

// delimitedHeader is the first row of the delimited format
var delimitedHeader = []string{"Key", "Value", "Timestamp", "Encrypted", "TTL"}

// ErrUnknownFormat is returned for format names other than structured, delimited and plain
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat parses a format name. "json", "csv" and "txt" are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structured", "json":
		return FormatStructured, nil
	case "delimited", "csv":
		return FormatDelimited, nil
	case "plain", "txt", "text":
		return FormatPlain, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// --------------------------------------------------------------------------
// Export
// --------------------------------------------------------------------------

// ExportRecord is the logical view of one key
type ExportRecord struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"` // last update, unix milliseconds
	Encrypted bool   `json:"encrypted"`
	TTL       *int64 `json:"ttl"` // remaining seconds, nil = no expiry
}

// Export serializes the records in the given format
func Export(records []ExportRecord, format Format) ([]byte, error) {
	switch format {
	case FormatStructured:
		if records == nil {
			records = []ExportRecord{}
		}
		return json.MarshalIndent(records, "", "  ")

	case FormatDelimited:
		var buf bytes.Buffer
		writeQuotedRow(&buf, delimitedHeader)
		for _, r := range records {
			ttl := ""
			if r.TTL != nil {
				ttl = strconv.FormatInt(*r.TTL, 10)
			}
			writeQuotedRow(&buf, []string{
				r.Key,
				r.Value,
				strconv.FormatInt(r.Timestamp, 10),
				strconv.FormatBool(r.Encrypted),
				ttl,
			})
		}
		return buf.Bytes(), nil

	case FormatPlain:
		var buf bytes.Buffer
		for _, r := range records {
			buf.WriteString(r.Key)
			buf.WriteString(plainSeparator)
			buf.WriteString(r.Value)
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
	}
}

// writeQuotedRow writes a CSV row with every field quoted
func writeQuotedRow(buf *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(f, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
}

// --------------------------------------------------------------------------
// Import
// --------------------------------------------------------------------------

// ImportRecord is one parsed record.
// A nil Value means the record had no value, such records are counted but not applied.
type ImportRecord struct {
	Key       string
	Value     []byte
	TTL       time.Duration // 0 = no expiry
	Encrypted bool
}

// Complete reports whether the record has both a key and a value
func (r ImportRecord) Complete() bool {
	return r.Key != "" && r.Value != nil
}

// Parse parses data in the given format.
// On error no records are returned.
func Parse(data []byte, format Format) ([]ImportRecord, error) {
	switch format {
	case FormatStructured:
		return parseStructured(data)
	case FormatDelimited:
		return parseDelimited(data)
	case FormatPlain:
		return parsePlain(data), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
	}
}

func parseStructured(data []byte) ([]ImportRecord, error) {
	var raw []struct {
		Key       *string         `json:"key"`
		Value     json.RawMessage `json:"value"`
		Encrypted *bool           `json:"encrypted"`
		TTL       *float64        `json:"ttl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse structured data: %w", err)
	}

	records := make([]ImportRecord, 0, len(raw))
	for i, r := range raw {
		var rec ImportRecord
		if r.Key != nil {
			rec.Key = *r.Key
		}
		if r.Encrypted != nil {
			rec.Encrypted = *r.Encrypted
		}
		if r.TTL != nil && *r.TTL > 0 {
			if *r.TTL > float64(db.MaxTTLSeconds) {
				return nil, fmt.Errorf("parse structured data: record %d: ttl %g out of range", i, *r.TTL)
			}
			rec.TTL = time.Duration(*r.TTL * float64(time.Second))
		}

		// strings are stored unquoted, any other json value as its json text
		if len(r.Value) > 0 && string(r.Value) != "null" {
			var s string
			if err := json.Unmarshal(r.Value, &s); err == nil {
				rec.Value = []byte(s)
			} else {
				rec.Value = []byte(r.Value)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseDelimited(data []byte) ([]ImportRecord, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	// column positions, positional unless a header says otherwise
	cols := map[string]int{"key": 0, "value": 1, "timestamp": 2, "encrypted": 3, "ttl": 4}

	var records []ImportRecord
	for line := 1; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("parse delimited data: %w", err)
		}

		if line == 1 && isHeader(row) {
			cols = make(map[string]int, len(row))
			for i, name := range row {
				cols[strings.ToLower(strings.TrimSpace(name))] = i
			}
			continue
		}

		field := func(name string) (string, bool) {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return "", false
			}
			return row[i], true
		}

		var rec ImportRecord
		rec.Key, _ = field("key")
		if v, ok := field("value"); ok {
			rec.Value = []byte(v)
		}
		if v, ok := field("encrypted"); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("parse delimited data: line %d: invalid encrypted flag %q", line, v)
			}
			rec.Encrypted = b
		}
		if v, ok := field("ttl"); ok && v != "" {
			secs, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse delimited data: line %d: invalid ttl %q", line, v)
			}
			if secs > 0 {
				if rec.TTL, err = db.TTLFromSeconds(secs); err != nil {
					return nil, fmt.Errorf("parse delimited data: line %d: %w", line, err)
				}
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func isHeader(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), delimitedHeader[0])
}

func parsePlain(data []byte) []ImportRecord {
	var records []ImportRecord
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, found := strings.Cut(line, plainSeparator)
		rec := ImportRecord{Key: key}
		if found {
			rec.Value = []byte(value)
		}
		records = append(records, rec)
	}
	return records
}
