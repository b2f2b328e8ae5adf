package metadata

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// dictionaryFile is the on-disk form of a dictionary:
//
//	dataTypes:
//	  person:
//	    - name: NAME
//	      type: string
//	      indexed: true
type dictionaryFile struct {
	DataTypes map[string][]Field `json:"dataTypes"`
}

// LoadFile reads a YAML or JSON dictionary file into a StaticProvider.
func LoadFile(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML or JSON dictionary document.
func Parse(data []byte) (*StaticProvider, error) {
	var f dictionaryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode dictionary: %w", err)
	}
	for dataType, fields := range f.DataTypes {
		for _, field := range fields {
			if field.Name == "" {
				return nil, fmt.Errorf("decode dictionary: data type '%s' has a field without a name", dataType)
			}
		}
	}
	return NewStaticProvider(f.DataTypes), nil
}
