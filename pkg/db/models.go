package db

import "fmt"

// Entry is one glossary record.
type Entry struct {
	ID         int64
	Term       string
	Definition string
	Source     string
}

// ExportRow is the exported projection of an Entry.
type ExportRow struct {
	Term       string
	Definition string
	Source     string
}

// Field names an editable column of an entry. The term itself is not
// editable.
type Field int

const (
	FieldDefinition Field = iota + 1
	FieldSource
)

func (f Field) String() string {
	switch f {
	case FieldDefinition:
		return "definition"
	case FieldSource:
		return "source"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// ParseField maps a user-supplied field name to a Field.
func ParseField(name string) (Field, error) {
	switch name {
	case "definition":
		return FieldDefinition, nil
	case "source":
		return FieldSource, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
}
