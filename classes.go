package yoloprep

import (
	"fmt"
	"strings"
)

// DefaultClasses are the classes of the helmet detector, in class ID order.
var DefaultClasses = []string{"helmet", "head"}

// ClassTable is a closed mapping from class name to class ID. IDs are the positions of the names
// in the table.
type ClassTable struct {
	names []string
	ids   map[string]int
}

// NewClassTable creates a table with IDs assigned in the order of names. Names must be non-empty
// and unique.
func NewClassTable(names []string) (ClassTable, error) {
	if len(names) == 0 {
		return ClassTable{}, fmt.Errorf("empty class table")
	}

	t := ClassTable{
		names: make([]string, len(names)),
		ids:   make(map[string]int, len(names)),
	}
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return ClassTable{}, fmt.Errorf("empty class name at index %d", i)
		}
		if _, dup := t.ids[name]; dup {
			return ClassTable{}, fmt.Errorf("duplicate class name %q", name)
		}
		t.names[i] = name
		t.ids[name] = i
	}

	return t, nil
}

// DefaultClassTable returns {"helmet": 0, "head": 1}.
func DefaultClassTable() ClassTable {
	t, _ := NewClassTable(DefaultClasses)
	return t
}

// ID returns the class ID for name. Unknown names are not added.
func (t ClassTable) ID(name string) (int, bool) {
	id, ok := t.ids[name]
	return id, ok
}

// Name returns the class name for id, or "" if id is out of range.
func (t ClassTable) Name(id int) string {
	if id < 0 || id >= len(t.names) {
		return ""
	}
	return t.names[id]
}

// Len is the number of classes.
func (t ClassTable) Len() int {
	return len(t.names)
}

// Names returns a copy of the class names in ID order.
func (t ClassTable) Names() []string {
	return append([]string(nil), t.names...)
}
