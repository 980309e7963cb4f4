package optimize

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/atr-swing-bot/pkg/strategy"
)

// DefaultParamsPath is where the best parameter sets are kept between runs.
const DefaultParamsPath = "config/best_params.yaml"

// ErrNoParams is returned when no saved parameter file exists yet.
var ErrNoParams = errors.New("no saved parameters, run the batch optimizer first")

const familyKey = "family"

// MarshalParams renders sets as a YAML list of mappings, one per set, in order.
// Each mapping carries a family key followed by the parameters sorted by name.
func MarshalParams(sets []ParamSet) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.SequenceNode}
	for _, s := range sets {
		m := &yaml.Node{Kind: yaml.MappingNode}
		if s.Family != "" {
			m.Content = append(m.Content, scalar(familyKey), scalar(string(s.Family)))
		}
		for _, k := range s.Params.Keys() {
			m.Content = append(m.Content, scalar(k), scalar(strconv.FormatFloat(s.Params[k], 'g', -1, 64)))
		}
		doc.Content = append(doc.Content, m)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
}

// UnmarshalParams parses a list written by MarshalParams. A mapping without a
// family key yields a set with an empty Family, left for the caller to decide.
func UnmarshalParams(data []byte) ([]ParamSet, error) {
	var raw []map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse parameters: %w", err)
	}
	sets := make([]ParamSet, 0, len(raw))
	for i, m := range raw {
		set := ParamSet{Params: make(strategy.Params, len(m))}
		for k, v := range m {
			if k == familyKey {
				name, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("entry %d: family must be a string", i)
				}
				set.Family = strategy.Family(name)
				continue
			}
			switch n := v.(type) {
			case int:
				set.Params[k] = float64(n)
			case float64:
				set.Params[k] = n
			case bool:
				if n {
					set.Params[k] = 1
				} else {
					set.Params[k] = 0
				}
			default:
				return nil, fmt.Errorf("entry %d: parameter %q is not numeric", i, k)
			}
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// SaveParams writes sets to path, creating parent directories.
func SaveParams(path string, sets []ParamSet) error {
	data, err := MarshalParams(sets)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create params directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadParams reads sets saved by SaveParams.
func LoadParams(path string) ([]ParamSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoParams
		}
		return nil, err
	}
	return UnmarshalParams(data)
}
