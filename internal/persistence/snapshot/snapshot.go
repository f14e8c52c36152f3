package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

var ErrCorrupt = errors.New("snapshot: corrupt")

// Header is written as a single JSON line ahead of the gob body so tools can
// inspect a snapshot without decoding every block.
type Header struct {
	Version     int    `json:"version"`
	SavedAtUnix int64  `json:"saved_at_unix_ms"`
	Blocks      int    `json:"blocks"`
	Types       int    `json:"types"`
	Note        string `json:"note,omitempty"`
}

// BlocksV1 stores the known-block map. Block type names are interned in Palette and
// each block refers to its palette slot.
type BlocksV1 struct {
	Header  Header    `json:"header"`
	Palette []string  `json:"palette"`
	Blocks  []BlockV1 `json:"blocks"`
}

type BlockV1 struct {
	Pos  [3]int `json:"pos"`
	Type uint32 `json:"type"`
}

// Validate checks internal consistency after decode.
func (s BlocksV1) Validate() error {
	if s.Header.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, s.Header.Version)
	}
	if s.Header.Blocks != len(s.Blocks) {
		return fmt.Errorf("%w: header counts %d blocks, body has %d", ErrCorrupt, s.Header.Blocks, len(s.Blocks))
	}
	for i, b := range s.Blocks {
		if int(b.Type) >= len(s.Palette) {
			return fmt.Errorf("%w: block %d refers to palette slot %d of %d", ErrCorrupt, i, b.Type, len(s.Palette))
		}
	}
	return nil
}

// WriteSnapshot writes snap to a temporary file beside path and renames it into
// place, so a crash mid-write leaves the previous snapshot intact.
func WriteSnapshot(path string, snap BlocksV1) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func encode(w io.Writer, snap BlocksV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ReadSnapshot decodes and validates a snapshot. A missing file surfaces as an
// fs.ErrNotExist error; anything unreadable wraps ErrCorrupt.
func ReadSnapshot(path string) (BlocksV1, error) {
	var snap BlocksV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	if _, err := readHeader(br); err != nil {
		return snap, err
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return BlocksV1{}, fmt.Errorf("%w: gob decode: %v", ErrCorrupt, err)
	}
	if err := snap.Validate(); err != nil {
		return BlocksV1{}, err
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer dec.Close()
	return readHeader(bufio.NewReader(dec))
}

func readHeader(br *bufio.Reader) (Header, error) {
	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	return h, nil
}
