package datasource

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/gauntlet/eval"
)

// YAML reads cases from a YAML document that is either a sequence of case
// mappings or a mapping with a "cases" sequence.
type YAML struct {
	Path string
}

func (y YAML) Load(ctx context.Context) ([]eval.TestCase, error) {
	data, err := os.ReadFile(y.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", y.Path, err)
	}
	return ParseYAML(data)
}

func ParseYAML(data []byte) ([]eval.TestCase, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.MappingNode {
		var wrapped struct {
			Cases yaml.Node `yaml:"cases"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
		root = &wrapped.Cases
	}
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("parsing yaml: expected a list of cases")
	}

	cases := make([]eval.TestCase, 0, len(root.Content))
	for i, item := range root.Content {
		var obj map[string]any
		if err := item.Decode(&obj); err != nil {
			return nil, fmt.Errorf("case %d (line %d): %w", i+1, item.Line, err)
		}
		c, err := caseFromMap(obj)
		if err != nil {
			return nil, fmt.Errorf("case %d (line %d): %w", i+1, item.Line, err)
		}
		cases = append(cases, c)
	}
	return cases, nil
}
