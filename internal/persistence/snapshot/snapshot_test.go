package snapshot

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func sample() BlocksV1 {
	return BlocksV1{
		Header:  Header{Version: Version, SavedAtUnix: 1700000000000, Blocks: 3, Types: 2},
		Palette: []string{"minecraft:stone", "minecraft:bedrock"},
		Blocks: []BlockV1{
			{Pos: [3]int{0, 64, 0}, Type: 0},
			{Pos: [3]int{-5, -60, 12}, Type: 1},
			{Pos: [3]int{1, 64, 0}, Type: 0},
		},
	}
}

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "world.bin")
	want := sample()
	if err := WriteSnapshot(path, want); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, want)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h != want.Header {
		t.Fatalf("header=%+v want %+v", h, want.Header)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the snapshot file, got %d entries", len(entries))
	}
}

func TestWriteSnapshot_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.bin")
	if err := WriteSnapshot(path, sample()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	empty := BlocksV1{Header: Header{Version: Version}}
	if err := WriteSnapshot(path, empty); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if len(got.Blocks) != 0 || len(got.Palette) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", got)
	}
}

func TestReadSnapshot_Missing(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "absent.bin"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err=%v want fs.ErrNotExist", err)
	}
}

func TestReadSnapshot_Corrupt(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.bin")
	if err := os.WriteFile(garbage, []byte("not a snapshot at all"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(garbage); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("garbage err=%v want ErrCorrupt", err)
	}

	good := filepath.Join(dir, "good.bin")
	if err := WriteSnapshot(good, sample()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	raw, err := os.ReadFile(good)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	truncated := filepath.Join(dir, "truncated.bin")
	if err := os.WriteFile(truncated, raw[:len(raw)/2], 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(truncated); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("truncated err=%v want ErrCorrupt", err)
	}

	bad := sample()
	bad.Blocks[0].Type = 9
	badPath := filepath.Join(dir, "badpalette.bin")
	if err := WriteSnapshot(badPath, bad); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := ReadSnapshot(badPath); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("bad palette err=%v want ErrCorrupt", err)
	}
}
