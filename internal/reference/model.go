package reference

import "sort"

// CodeList описывает один справочник кодов (значения для select-полей)
type CodeList struct {
	Name  string     `yaml:"name"`
	Items []CodeItem `yaml:"items"`
}

type CodeItem struct {
	Code string `yaml:"code"`
	// Label - ключ локализации или готовый текст
	Label string `yaml:"label"`
	Order int    `yaml:"order,omitempty"`
	// Скрытые коды валидны для сохранённых записей, но не предлагаются в форме
	Hidden bool `yaml:"hidden,omitempty"`
}

// Sorted возвращает элементы по Order, при равенстве - в порядке файла.
func (c CodeList) Sorted() []CodeItem {
	out := append([]CodeItem(nil), c.Items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Has проверяет, что код есть в справочнике.
func (c CodeList) Has(code string) bool {
	for _, it := range c.Items {
		if it.Code == code {
			return true
		}
	}
	return false
}
