package reference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// LoadCodeLists читает все справочники кодов из папки (reference/codes/)
func LoadCodeLists(dir string) (map[string]CodeList, error) {
	result := make(map[string]CodeList)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var list CodeList
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		// Имя справочника - из list.Name или из имени файла
		name := list.Name
		if name == "" {
			name = strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		}
		if _, dup := result[name]; dup {
			return nil, fmt.Errorf("duplicate code list %q (file: %s)", name, path)
		}
		list.Name = name
		result[name] = list
	}
	return result, nil
}
