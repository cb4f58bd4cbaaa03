package lines

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileLine is the on-disk shape. Several spellings are accepted for the key
// and wavelength fields since line lists come from different exporters.
type fileLine struct {
	Species       string   `yaml:"species"`
	SpeciesKey    string   `yaml:"speciesKey"`
	SpeciesKeyAlt string   `yaml:"species_key"`
	Nm            *float64 `yaml:"nm"`
	RefNm         *float64 `yaml:"ref_nm"`
	RefNmAlt      *float64 `yaml:"refNm"`
	Element       string   `yaml:"element"`
	Tags          []string `yaml:"tags"`
}

func (f fileLine) line() Line {
	l := Line{
		Species:    f.Species,
		SpeciesKey: f.SpeciesKey,
		Element:    f.Element,
		Tags:       f.Tags,
	}

	if l.SpeciesKey == "" {
		l.SpeciesKey = f.SpeciesKeyAlt
	}

	for _, nm := range []*float64{f.Nm, f.RefNm, f.RefNmAlt} {
		if nm != nil {
			l.Nm = *nm
			break
		}
	}

	return l
}

// Load reads a line list in YAML or JSON. The document is either a sequence
// of lines or a mapping with a "lines" sequence.
func Load(r io.Reader) ([]Line, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lines: read: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("lines: parse: %w", err)
	}

	if len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	if doc.Kind == yaml.MappingNode {
		doc = mappingValue(doc, "lines")
		if doc == nil {
			return nil, fmt.Errorf("%w: document has no lines", ErrInvalidLine)
		}
	}

	var raw []fileLine
	if err := doc.Decode(&raw); err != nil {
		return nil, fmt.Errorf("lines: decode: %w", err)
	}

	out := make([]Line, 0, len(raw))
	for i, f := range raw {
		l, err := f.line().normalize()
		if err != nil {
			return nil, indexError(i, err)
		}

		out = append(out, l)
	}

	return out, nil
}

// LoadFile opens path and calls Load.
func LoadFile(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lines: %w", err)
	}
	defer f.Close()

	return Load(f)
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}

	return nil
}

func indexError(i int, err error) error {
	return fmt.Errorf("line %d: %w", i, err)
}
