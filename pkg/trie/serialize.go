package trie

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// serializeMagic guards against decoding a stream written by an
// incompatible format version.
const serializeMagic uint32 = 0x54524931 // "TRI1"

// Serialize encodes (top_k, size, list of (phrase, count, last_updated))
// in a stable binary form: a fixed header followed by length-prefixed
// entries.
func (t *Trie) Serialize(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, serializeMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, int32(t.k)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, int64(len(t.index))); err != nil {
		return err
	}
	for phraseStr, c := range t.index {
		if err := writeEntry(bw, phraseStr, c.Count, c.LastUpdated); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeEntry(w *bufio.Writer, phraseStr string, count int64, at time.Time) error {
	if len(phraseStr) > 0xFFFF {
		return fmt.Errorf("trie: phrase too long to serialize: %d bytes", len(phraseStr))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(phraseStr))); err != nil {
		return err
	}
	if _, err := w.WriteString(phraseStr); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, count); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, at.UnixNano())
}

// Deserialize rebuilds a Trie from the Serialize format. K and max phrase
// length come from cfg; the encoded K is informational only (a rebuild
// may legitimately target a different K than the snapshot was taken with).
func Deserialize(r io.Reader, cfg Config) (*Trie, error) {
	br := bufio.NewReader(r)

	var magic uint32
	if err := binary.Read(br, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != serializeMagic {
		return nil, fmt.Errorf("trie: unrecognized serialization magic %x", magic)
	}
	var encodedK int32
	if err := binary.Read(br, binary.LittleEndian, &encodedK); err != nil {
		return nil, err
	}
	var count int64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	out := New(cfg)
	for i := int64(0); i < count; i++ {
		phraseStr, phraseCount, at, err := readEntry(br)
		if err != nil {
			return nil, err
		}
		out.mu.Lock()
		out.insertLockedAt(phraseStr, phraseCount, at)
		out.mu.Unlock()
	}
	return out, nil
}

func readEntry(r *bufio.Reader) (string, int64, time.Time, error) {
	var wordLen uint16
	if err := binary.Read(r, binary.LittleEndian, &wordLen); err != nil {
		return "", 0, time.Time{}, err
	}
	buf := make([]byte, wordLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", 0, time.Time{}, err
	}
	var cnt int64
	if err := binary.Read(r, binary.LittleEndian, &cnt); err != nil {
		return "", 0, time.Time{}, err
	}
	var nanos int64
	if err := binary.Read(r, binary.LittleEndian, &nanos); err != nil {
		return "", 0, time.Time{}, err
	}
	return string(buf), cnt, time.Unix(0, nanos), nil
}
