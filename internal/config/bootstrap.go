package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/quailyquaily/telegramdock/internal/fsstore"
)

// keyComments are written above the matching keys of a generated file.
var keyComments = map[string]string{
	"token":       "Bot token from @BotFather.",
	"operator_id": "Numeric user id of the operator who receives relayed messages (see @userinfobot).",
	"backend":     "file or redis.",
	"interval":    "How often to re-check the config while the token or operator id is missing.",
}

// EnsureDefault writes the default configuration to path when no file
// exists there. created reports whether a file was written.
func EnsureDefault(path string) (created bool, err error) {
	exists, err := fileExists(path)
	if err != nil {
		return false, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if exists {
		return false, nil
	}
	raw, err := MarshalYAML(Default())
	if err != nil {
		return false, err
	}
	if err := fsstore.EnsureDir(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("config: create dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return false, fmt.Errorf("config: write %s: %w", path, err)
	}
	return true, nil
}

// MarshalYAML renders cfg as a commented YAML document.
func MarshalYAML(cfg Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode yaml: %w", err)
	}
	annotate(&doc)
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("config: encode yaml: %w", err)
	}
	return out, nil
}

func annotate(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			if c, ok := keyComments[n.Content[i].Value]; ok {
				n.Content[i].HeadComment = c
			}
		}
	}
	for _, child := range n.Content {
		annotate(child)
	}
}
