package seed

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/adroute/internal/domain/model"
)

// file is the document layout: either a bare list of buyers or a mapping
// with a "buyers" key. JSON documents parse as YAML.
type file struct {
	Buyers []model.Buyer `yaml:"buyers"`
}

// LoadFile reads buyers from path.
func LoadFile(path string) ([]model.Buyer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads buyers from r.
func Load(r io.Reader) ([]model.Buyer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	var buyers []model.Buyer
	if root.Content[0].Kind == yaml.SequenceNode {
		err = root.Content[0].Decode(&buyers)
	} else {
		var doc file
		err = root.Content[0].Decode(&doc)
		buyers = doc.Buyers
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	for i := range buyers {
		for j := range buyers[i].Offers {
			buyers[i].Offers[j].ID = ""
		}
	}
	return buyers, nil
}
