package classifier

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Save writes the forest as JSON, replacing path atomically.
func (f *Forest) Save(path string) error {
	data, err := json.Marshal(f)
	if err != nil {
		return eris.Wrap(err, "classifier: marshal model")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*")
	if err != nil {
		return eris.Wrap(err, "classifier: create temp model")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return eris.Wrap(err, "classifier: write model")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "classifier: close model")
	}
	return eris.Wrapf(os.Rename(tmp.Name(), path), "classifier: save %s", path)
}

// Load reads a forest saved by Save.
func Load(path string) (*Forest, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, eris.Wrapf(err, "classifier: read %s", path)
	}
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "classifier: parse %s", path)
	}
	if len(f.Trees) == 0 {
		return nil, eris.Errorf("classifier: %s has no trees", path)
	}
	for t, tree := range f.Trees {
		if len(tree.Nodes) == 0 {
			return nil, eris.Errorf("classifier: tree %d is empty", t)
		}
		for _, n := range tree.Nodes {
			if n.Feature >= len(f.Columns) ||
				(n.Feature >= 0 && (n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes))) {
				return nil, eris.Errorf("classifier: tree %d is malformed", t)
			}
		}
	}
	return &f, nil
}
