package entity

// Kind is the semantic type of a field.
//
// It decides how a raw value is coerced and how a coerced value is rendered.
type Kind int

const (
	// a string. Numbers are accepted and written as strings.
	String Kind = iota

	// a list of strings. A bare string becomes a one-element list.
	StringList

	// a list of paths. A bare path becomes a one-element list.
	PathList

	// a path.
	Path

	// one or more resource ids, rendered as {id, type} by fetching them.
	IDRef

	// an object of another schema.
	Nested

	// a list of distribution entries ({path, content_type}).
	Distribution

	// a string in the fixed set of Field.Values.
	Enum

	// a path wrapped as {type: DataDownload, url: file://...}.
	DataDownload

	// a date-time, written in RFC3339.
	DateTime
)

func (k Kind) String() string {
	switch k {
	case String:
		return "str"
	case StringList:
		return "List[str]"
	case PathList:
		return "List[path]"
	case Path:
		return "path"
	case IDRef:
		return "id"
	case Nested:
		return "object"
	case Distribution:
		return "distribution"
	case Enum:
		return "enum"
	case DataDownload:
		return "DataDownload"
	case DateTime:
		return "datetime"
	default:
		return "unknown"
	}
}

// Field is a field declaration of a schema.
type Field struct {
	Name     string
	Kind     Kind
	Required bool

	// permitted values, for Enum
	Values []string

	// name of the schema of the value, for Nested
	Schema string
}
