package evaluator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/domino14/stackbot/cache"
	"github.com/domino14/stackbot/config"
)

// Weights tune the Freestyle evaluator. The zero value of the optional
// surface features (Holes, Height, Bumpiness, Wells) disables them.
type Weights struct {
	CellCoveredness      float64 `yaml:"cell_coveredness"`
	MaxCellCoveredHeight int     `yaml:"max_cell_covered_height"`
	RowTransitions       float64 `yaml:"row_transitions"`

	HasBackToBack float64 `yaml:"has_back_to_back"`
	WastedT       float64 `yaml:"wasted_t"`
	SoftDrop      float64 `yaml:"softdrop"`

	NormalClears         []float64 `yaml:"normal_clears"`
	MiniSpinClears       []float64 `yaml:"mini_spin_clears"`
	SpinClears           []float64 `yaml:"spin_clears"`
	BackToBackClear      float64   `yaml:"back_to_back_clear"`
	ComboAttack          float64   `yaml:"combo_attack"`
	PerfectClear         float64   `yaml:"perfect_clear"`
	PerfectClearOverride bool      `yaml:"perfect_clear_override"`

	Holes     float64 `yaml:"holes"`
	Height    float64 `yaml:"height"`
	Bumpiness float64 `yaml:"bumpiness"`
	Wells     float64 `yaml:"wells"`
}

func DefaultWeights() *Weights {
	return &Weights{
		CellCoveredness:      -0.2,
		MaxCellCoveredHeight: 6,
		RowTransitions:       -0.1,

		HasBackToBack: 0.5,
		WastedT:       -1.5,
		SoftDrop:      -0.1,

		NormalClears:         []float64{0, -1.5, -1.0, -0.5, 4.0},
		MiniSpinClears:       []float64{0, -1.5, -1.0},
		SpinClears:           []float64{0, 1.0, 4.0, 6.0},
		BackToBackClear:      1.0,
		ComboAttack:          1.5,
		PerfectClear:         15.0,
		PerfectClearOverride: true,
	}
}

func (w *Weights) Validate() error {
	if w.MaxCellCoveredHeight < 0 {
		return fmt.Errorf("max_cell_covered_height must not be negative")
	}
	if len(w.NormalClears) == 0 || len(w.SpinClears) == 0 || len(w.MiniSpinClears) == 0 {
		return fmt.Errorf("clear tables must not be empty")
	}
	return nil
}

// ParseWeights reads YAML on top of the defaults, so a file only needs to
// list the weights it changes.
func ParseWeights(data []byte) (*Weights, error) {
	w := DefaultWeights()
	if err := yaml.Unmarshal(data, w); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Weights) Marshal() ([]byte, error) {
	return yaml.Marshal(w)
}

// WeightsCacheLoadFunc is the cache loader for a weights file.
func WeightsCacheLoadFunc(cfg *config.Config, key string) (interface{}, error) {
	data, err := os.ReadFile(key)
	if err != nil {
		return nil, err
	}
	return ParseWeights(data)
}

// LoadWeights returns the weights named by the config, or the defaults
// when no file is configured. Files are read once per process.
func LoadWeights(cfg *config.Config) (*Weights, error) {
	path := cfg.GetString(config.ConfigWeightsFile)
	if path == "" {
		return DefaultWeights(), nil
	}
	obj, err := cache.Load(cfg, path, WeightsCacheLoadFunc)
	if err != nil {
		return nil, err
	}
	w, ok := obj.(*Weights)
	if !ok {
		return nil, fmt.Errorf("cached object for %v is not a weights file", path)
	}
	return w, nil
}

// FromConfig builds the evaluator selected by the config.
func FromConfig(cfg *config.Config) (Evaluator, error) {
	w, err := LoadWeights(cfg)
	if err != nil {
		return nil, err
	}
	return ByName(cfg.GetString(config.ConfigEvaluator), w)
}
