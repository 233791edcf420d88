package snapshot

import (
	"sort"

	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/writelog"
)

// KeyedEntry is one raw entry of a Blob
type KeyedEntry struct {
	Key   string   `json:"key"`
	Entry db.Entry `json:"entry"`
}

// Blob is the persisted state of an engine
type Blob struct {
	Entries       []KeyedEntry      `json:"entries"`
	EncryptedKeys []string          `json:"encrypted_keys"`
	Log           []writelog.Record `json:"log"`
}

// Sort orders entries and encrypted keys by key, so equal states encode to equal bytes.
func (b *Blob) Sort() {
	sort.Slice(b.Entries, func(i, j int) bool { return b.Entries[i].Key < b.Entries[j].Key })
	sort.Strings(b.EncryptedKeys)
}
