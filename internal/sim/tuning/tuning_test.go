package tuning

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_RepoConfigMatchesDefaults(t *testing.T) {
	got, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, Defaults()) {
		t.Fatalf("configs/tuning.yaml drifted from Defaults():\n got=%+v\nwant=%+v", got, Defaults())
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := "path:\n  can_dig: false\n  padding: 8\nsnapshot:\n  every_seconds: 30\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Path.CanDig || got.Path.Padding != 8 {
		t.Fatalf("path overrides not applied: %+v", got.Path)
	}
	if got.Path.MinY != -60 || got.Path.MaxY != 318 {
		t.Fatalf("height band lost defaults: %+v", got.Path)
	}
	if got.Blocks.Air != "minecraft:air" || len(got.Blocks.Indestructible) != 1 {
		t.Fatalf("blocks lost defaults: %+v", got.Blocks)
	}
	if got.SnapshotEvery() != 30*time.Second || got.Snapshot.Path != "data/world.bin" {
		t.Fatalf("snapshot=%+v", got.Snapshot)
	}
	if got.QueryTimeout() != 5*time.Second {
		t.Fatalf("query timeout=%s", got.QueryTimeout())
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"band":     "path:\n  min_y: 10\n  max_y: 0\n",
		"padding":  "path:\n  padding: -1\n",
		"every":    "snapshot:\n  every_seconds: 0\n",
		"air":      "blocks:\n  air: \"\"\n",
		"cells":    "path:\n  max_grid_cells: 0\n",
		"syntax":   "path: [",
		"savepath": "snapshot:\n  path: \"\"\n",
	}
	for name, raw := range cases {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "tuning.yaml") {
			t.Fatalf("%s: err=%v want tuning.yaml error", name, err)
		}
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
