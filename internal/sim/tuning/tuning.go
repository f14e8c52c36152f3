package tuning

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Server   ServerTuning   `yaml:"server"`
	Path     PathTuning     `yaml:"path"`
	Blocks   BlockTuning    `yaml:"blocks"`
	Snapshot SnapshotTuning `yaml:"snapshot"`
	Logs     LogTuning      `yaml:"logs"`
}

type ServerTuning struct {
	Addr string `yaml:"addr"`
	// SecretKey, when set, must match the Authorization header (HTTP) or HELLO token (WS).
	SecretKey string `yaml:"secret_key"`
}

type PathTuning struct {
	Padding        int  `yaml:"padding"`
	CanDig         bool `yaml:"can_dig"`
	MinY           int  `yaml:"min_y"`
	MaxY           int  `yaml:"max_y"`
	MaxGridCells   int  `yaml:"max_grid_cells"`
	QueryTimeoutMs int  `yaml:"query_timeout_ms"`
}

type BlockTuning struct {
	Air            string   `yaml:"air"`
	Indestructible []string `yaml:"indestructible"`
}

type SnapshotTuning struct {
	Path         string `yaml:"path"`
	EverySeconds int    `yaml:"every_seconds"`
}

type LogTuning struct {
	Dir     string `yaml:"dir"`
	IndexDB string `yaml:"index_db"`
}

func Defaults() Tuning {
	return Tuning{
		Server: ServerTuning{Addr: ":8080"},
		Path: PathTuning{
			Padding:        3,
			CanDig:         true,
			MinY:           -60,
			MaxY:           318,
			MaxGridCells:   16 << 20,
			QueryTimeoutMs: 5000,
		},
		Blocks: BlockTuning{
			Air:            "minecraft:air",
			Indestructible: []string{"minecraft:bedrock"},
		},
		Snapshot: SnapshotTuning{Path: "data/world.bin", EverySeconds: 120},
		Logs:     LogTuning{Dir: "data/logs", IndexDB: "data/index/world.sqlite"},
	}
}

// Load reads path over Defaults(); keys absent from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.Path.Padding < 0 {
		errs = append(errs, fmt.Errorf("path.padding must be >= 0 (got %d)", t.Path.Padding))
	}
	if t.Path.MinY > t.Path.MaxY {
		errs = append(errs, fmt.Errorf("path.min_y %d exceeds path.max_y %d", t.Path.MinY, t.Path.MaxY))
	}
	if t.Path.MaxGridCells <= 0 {
		errs = append(errs, fmt.Errorf("path.max_grid_cells must be > 0"))
	}
	if t.Path.QueryTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("path.query_timeout_ms must be >= 0"))
	}
	if t.Blocks.Air == "" {
		errs = append(errs, errors.New("blocks.air must not be empty"))
	}
	if t.Snapshot.Path == "" {
		errs = append(errs, errors.New("snapshot.path must not be empty"))
	}
	if t.Snapshot.EverySeconds <= 0 {
		errs = append(errs, fmt.Errorf("snapshot.every_seconds must be > 0 (got %d)", t.Snapshot.EverySeconds))
	}
	return errors.Join(errs...)
}

func (t Tuning) QueryTimeout() time.Duration {
	return time.Duration(t.Path.QueryTimeoutMs) * time.Millisecond
}

func (t Tuning) SnapshotEvery() time.Duration {
	return time.Duration(t.Snapshot.EverySeconds) * time.Second
}
