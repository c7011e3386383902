package screen

import (
	"fmt"
	"sort"
	"strings"

	"backoffice/internal/dsl"
	"backoffice/internal/reference"
)

// Catalog - все экраны, собранные из forms/*.dsl и справочников кодов.
type Catalog struct {
	defs  map[string]*Definition
	Codes map[string]reference.CodeList
}

// LintError - каталог не собран из-за блокирующих замечаний линтера.
type LintError struct {
	Issues []Issue
}

func (e *LintError) Error() string {
	if len(e.Issues) == 1 {
		return "form lint: " + e.Issues[0].String()
	}
	return fmt.Sprintf("form lint: %d issues, first: %s", len(e.Issues), e.Issues[0].String())
}

// LoadCatalog читает DSL-формы и коды с диска.
func LoadCatalog(formsDir, codesDir string, be Backend) (*Catalog, error) {
	screens, err := dsl.LoadAllScreens(formsDir)
	if err != nil {
		return nil, fmt.Errorf("load forms: %w", err)
	}
	codes := map[string]reference.CodeList{}
	if codesDir != "" {
		codes, err = reference.LoadCodeLists(codesDir)
		if err != nil {
			return nil, fmt.Errorf("load codes: %w", err)
		}
	}
	return BuildCatalog(screens, codes, be)
}

// BuildCatalog прогоняет линтер и строит определения экранов.
// be нужен для обработчиков строк options-полей с rows_path; может быть nil.
func BuildCatalog(screens map[string]*dsl.Screen, codes map[string]reference.CodeList, be Backend) (*Catalog, error) {
	if issues := Lint(screens, codes); len(issues) > 0 {
		return nil, &LintError{Issues: issues}
	}
	c := &Catalog{defs: make(map[string]*Definition, len(screens)), Codes: codes}
	for fqn, s := range screens {
		def, err := newDefinition(s, codes, be)
		if err != nil {
			return nil, err
		}
		c.defs[fqn] = def
	}
	return c, nil
}

// Definitions - все экраны по FQN.
func (c *Catalog) Definitions() []*Definition {
	out := make([]*Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FQN < out[j].FQN })
	return out
}

func (c *Catalog) Len() int { return len(c.defs) }

// Resolve находит экран по "module.Name" или по одному имени.
// Регистр не важен; имя без модуля должно быть уникальным.
func (c *Catalog) Resolve(name string) (*Definition, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	if d, ok := c.defs[name]; ok {
		return d, true
	}
	module := ""
	if dot := strings.IndexByte(name, '.'); dot > 0 {
		module, name = name[:dot], name[dot+1:]
	}

	if module != "" {
		for fqn, d := range c.defs {
			if strings.EqualFold(d.Module, module) && strings.EqualFold(d.Name, name) {
				return c.defs[fqn], true
			}
		}
		return nil, false
	}

	// модуля нет - имя должно встретиться ровно один раз
	var found *Definition
	for _, d := range c.defs {
		if strings.EqualFold(d.Name, name) {
			if found != nil {
				return nil, false
			}
			found = d
		}
	}
	return found, found != nil
}
