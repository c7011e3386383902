package form

// Kind - закрытый набор типов полей. Реализации есть только в этом пакете,
// поэтому switch по Kind в Render/Validate покрывает все варианты.
type Kind interface {
	kind() string
}

const (
	TypeInput       = "input"
	TypeInputNumber = "inputnumber"
	TypeSelect      = "select"
	TypeUpload      = "upload"
	TypeDate        = "date"
	TypeDateTime    = "datetime"
	TypeEditor      = "editor"
	TypeOptions     = "options"
	TypeDisplay     = "display"
	TypeButton      = "button"
	TypeVideo       = "video"
)

// Option - значение select-поля.
type Option struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Hidden bool   `json:"-"`
}

type Input struct {
	Placeholder string
	MaxLength   int
}

type InputNumber struct {
	Min *float64
	Max *float64
}

type Select struct {
	Options  []Option
	Multiple bool
}

type Upload struct {
	Accept   string
	MaxCount int
	// Crop - соотношение сторон для кропа в браузере, например "16:9"
	Crop string
}

type Date struct{}

type DateTime struct{}

type Editor struct{}

// Options - повторяемая подформа (дочерние записи внутри родительской формы).
type Options struct {
	Fields   []Descriptor
	AddLabel string
	MaxRows  int
}

type Display struct {
	Format string
}

type Button struct {
	Action string
}

type Video struct {
	Accept string
}

func (Input) kind() string       { return TypeInput }
func (InputNumber) kind() string { return TypeInputNumber }
func (Select) kind() string      { return TypeSelect }
func (Upload) kind() string      { return TypeUpload }
func (Date) kind() string        { return TypeDate }
func (DateTime) kind() string    { return TypeDateTime }
func (Editor) kind() string      { return TypeEditor }
func (Options) kind() string     { return TypeOptions }
func (Display) kind() string     { return TypeDisplay }
func (Button) kind() string      { return TypeButton }
func (Video) kind() string       { return TypeVideo }

// TypeOf возвращает строковое имя типа ("" для nil).
func TypeOf(k Kind) string {
	if k == nil {
		return ""
	}
	return k.kind()
}
