package forest

import (
	"encoding/json"
	"fmt"
	"io"

	randomforest "github.com/malaschitz/randomForest"
)

// Artifact identification.
const (
	FormatName    = "petal/random-forest"
	FormatVersion = 2
)

type artifact struct {
	Format   string               `json:"format"`
	Version  int                  `json:"version"`
	Features []string             `json:"features"`
	Classes  []string             `json:"classes"`
	Params   Params               `json:"params"`
	Model    *randomforest.Forest `json:"model"`
}

// Save writes the forest as a versioned JSON artifact.
func (f *Forest) Save(w io.Writer) error {
	a := artifact{
		Format:   FormatName,
		Version:  FormatVersion,
		Features: f.Features,
		Classes:  f.Classes,
		Params:   f.Params,
		Model:    f.model,
	}
	if err := json.NewEncoder(w).Encode(&a); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return nil
}

// Load reads an artifact written by Save and checks its structure, so a
// loaded forest can never index out of range while predicting.
func Load(r io.Reader) (*Forest, error) {
	var a artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	if a.Format != FormatName {
		return nil, fmt.Errorf("%w: format %q", ErrCorruptModel, a.Format)
	}
	if a.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, a.Version)
	}
	f := &Forest{
		Features: a.Features,
		Classes:  a.Classes,
		Params:   a.Params,
		model:    a.Model,
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Forest) validate() error {
	if len(f.Features) == 0 {
		return fmt.Errorf("%w: no features", ErrCorruptModel)
	}
	if len(f.Classes) == 0 {
		return fmt.Errorf("%w: no classes", ErrCorruptModel)
	}
	m := f.model
	if m == nil || len(m.Trees) == 0 {
		return fmt.Errorf("%w: no trees", ErrCorruptModel)
	}
	if m.NTrees != len(m.Trees) {
		return fmt.Errorf("%w: %d trees recorded, %d stored", ErrCorruptModel, m.NTrees, len(m.Trees))
	}
	if m.Features != len(f.Features) {
		return fmt.Errorf("%w: trees use %d features, %d named", ErrCorruptModel, m.Features, len(f.Features))
	}
	if m.Classes < 1 || m.Classes > len(f.Classes) {
		return fmt.Errorf("%w: trees vote for %d classes, %d named", ErrCorruptModel, m.Classes, len(f.Classes))
	}
	// send one row down every tree so a broken branch fails here, not per request
	if _, err := f.vote(make([]float64, len(f.Features))); err != nil {
		return err
	}
	return nil
}
