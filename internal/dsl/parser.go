package dsl

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	screenRe = regexp.MustCompile(`^screen\s+(\w+)\s*:(.*)$`)
	fieldRe  = regexp.MustCompile(`^([\w_]+):\s*([^\s#]+)(.*)$`)
	enumRe   = regexp.MustCompile(`^(\w+)\[(.*)\]$`)
	moduleRe = regexp.MustCompile(`^\s*module\s+([A-Za-z0-9_.-]+)\s*$`)
)

// splitOptionTokens делит "k=v k2='v 2' pattern=^[A-Z0-9 _-]+$" на токены, не рвёт по пробелам внутри кавычек/скобок
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false
	bracketDepth := 0

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble && bracketDepth == 0 {
				inSingle = !inSingle
			}
			buf = append(buf, r)
		case '"':
			if !inSingle && bracketDepth == 0 {
				inDouble = !inDouble
			}
			buf = append(buf, r)
		case '[':
			if !inSingle && !inDouble {
				bracketDepth++
			}
			buf = append(buf, r)
		case ']':
			if !inSingle && !inDouble && bracketDepth > 0 {
				bracketDepth--
			}
			buf = append(buf, r)
		default:
			if (r == ' ' || r == '\t') && !inSingle && !inDouble && bracketDepth == 0 {
				flush()
				continue
			}
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

// parseOptions: хвост строки после типа → map опций. Флаг без значения = "true".
func parseOptions(tail string) map[string]string {
	raw := strings.TrimSpace(tail)
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	if strings.HasPrefix(strings.ToLower(raw), "options:") {
		raw = strings.TrimSpace(raw[len("options:"):])
	}
	raw = strings.ReplaceAll(raw, ",", " ")

	out := map[string]string{}
	for _, tok := range splitOptionTokens(raw) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if !strings.Contains(tok, "=") {
			out[strings.ToLower(tok)] = "true"
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		k := strings.ToLower(strings.TrimSpace(kv[0]))
		v := strings.TrimSpace(kv[1])
		if len(v) >= 2 {
			if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
				v = v[1 : len(v)-1]
			}
		}
		if k != "" {
			out[k] = v
		}
	}
	return out
}

func indentOf(raw string) int {
	n := 0
	for _, r := range raw {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

// frame - уровень вложенности: поля экрана или дети options-поля.
type frame struct {
	fields   *[]Field
	owner    string // имя options-поля, "" для верхнего уровня
	ownerInd int    // отступ строки options-поля
	childInd int    // отступ первого ребёнка (-1 пока не встретили)
}

// LoadScreens читает один .dsl файл.
func LoadScreens(path string) ([]*Screen, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	screens, err := ParseScreens(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, s := range screens {
		s.File = path
	}
	return screens, nil
}

// ParseScreens разбирает DSL экранов:
//
//	module promo
//	screen Coupon: path=/coupon key=COUPON_ID readonly_when=STATUS:FINISHED
//	  TITLE: input required span=12
//	  PRIZES: options
//	    RANK: inputnumber required
func ParseScreens(r io.Reader) ([]*Screen, error) {
	var screens []*Screen
	var current *Screen
	var stack []*frame
	currentModule := ""
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := moduleRe.FindStringSubmatch(line); m != nil {
			currentModule = m[1]
			continue
		}

		if m := screenRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				screens = append(screens, current)
			}
			current = &Screen{
				Module:  currentModule,
				Name:    m[1],
				Options: parseOptions(m[2]),
			}
			stack = []*frame{{fields: &current.Fields, ownerInd: -1, childInd: -1}}
			continue
		}
		if current == nil {
			// всё вне screen игнорируем
			continue
		}

		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("line %d: cannot parse %q", lineNo, line)
		}
		ind := indentOf(raw)

		// закрываем options-блоки, из которых вышли по отступу
		for len(stack) > 1 && ind <= stack[len(stack)-1].ownerInd {
			stack = stack[:len(stack)-1]
		}
		top := stack[len(stack)-1]
		if top.childInd < 0 {
			top.childInd = ind
		}
		if ind > top.childInd {
			return nil, fmt.Errorf("line %d: field %q is nested under a non-options field", lineNo, m[1])
		}

		rawType, tail := m[2], m[3]
		// склейка оборванных типов со скобками: select[A, B]
		if strings.Contains(rawType, "[") && !strings.Contains(rawType, "]") {
			if idx := strings.Index(tail, "]"); idx >= 0 {
				rawType = rawType + tail[:idx+1]
				tail = tail[idx+1:]
			}
		}

		f := Field{
			Name:    m[1],
			Type:    strings.ToLower(rawType),
			Options: parseOptions(tail),
			Line:    lineNo,
		}
		// select[A,B,C] - значения прямо в типе
		if em := enumRe.FindStringSubmatch(rawType); em != nil {
			f.Type = strings.ToLower(em[1])
			for _, p := range strings.Split(em[2], ",") {
				s := strings.Trim(strings.TrimSpace(p), `"'`)
				if s != "" {
					f.Enum = append(f.Enum, s)
				}
			}
		}

		*top.fields = append(*top.fields, f)
		if f.Type == "options" {
			last := &(*top.fields)[len(*top.fields)-1]
			stack = append(stack, &frame{
				fields:   &last.Children,
				owner:    f.Name,
				ownerInd: ind,
				childInd: -1,
			})
		}
	}

	if current != nil {
		screens = append(screens, current)
	}
	return screens, scanner.Err()
}

// LoadAllScreens обходит каталог и собирает экраны всех *.dsl по FQN.
func LoadAllScreens(root string) (map[string]*Screen, error) {
	result := make(map[string]*Screen)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".dsl") {
			return nil
		}

		screens, err := LoadScreens(path)
		if err != nil {
			return err
		}
		for _, s := range screens {
			if s.Module == "" {
				return fmt.Errorf("screen %q in %s has no module; add `module <name>` at the top", s.Name, path)
			}
			if _, exists := result[s.FQN()]; exists {
				return fmt.Errorf("duplicate screen %q in module %q (file: %s)", s.Name, s.Module, path)
			}
			result[s.FQN()] = s
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
