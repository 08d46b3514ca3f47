package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile parses a YAML rule file at path into a RuleFile, per spec.md
// §6's rules.personalRulesPath/rules.projectRulesPath. A missing file is
// not an error; it returns an empty RuleFile so callers can treat both
// config keys as optional.
func LoadFile(path string) (*RuleFile, error) {
	if path == "" {
		return &RuleFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RuleFile{}, nil
		}
		return nil, fmt.Errorf("rules: load %s: %w", path, err)
	}
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", path, err)
	}
	return &file, nil
}

// LoadInto parses the rule files at personalPath and projectPath (either
// may be empty) and registers every rule found into e via AddRule. Rules
// from projectPath are loaded after personalPath, so a duplicate ID
// between the two surfaces as core.ErrDuplicateID on the second load.
func LoadInto(e *Engine, personalPath, projectPath string) error {
	for _, path := range []string{personalPath, projectPath} {
		file, err := LoadFile(path)
		if err != nil {
			return err
		}
		for _, r := range file.Rules {
			if err := e.AddRule(r); err != nil {
				return fmt.Errorf("rules: loading %s: %w", path, err)
			}
		}
	}
	return nil
}
