package http

import (
	"errors"
	"io"
	"iter"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/shapestone/shape-https/internal/linereader"
)

// Field is a single field line. Name is always lower-case.
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered field section (header or trailer) with case-insensitive
// names. Each name appears at most once; repeated lines are folded into a
// comma-separated list. The zero value is an empty section ready to use.
type Fields struct {
	list  []Field
	index map[string]int
}

// NewFields returns an empty section.
func NewFields() *Fields {
	return &Fields{}
}

// Len returns the number of distinct fields.
func (f *Fields) Len() int { return len(f.list) }

// At returns the i'th field in section order.
func (f *Fields) At(i int) Field { return f.list[i] }

// All iterates over the fields in section order.
func (f *Fields) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, fl := range f.list {
			if !yield(fl.Name, fl.Value) {
				return
			}
		}
	}
}

// Get returns the value of the named field and whether it is present.
func (f *Fields) Get(name string) (string, bool) {
	i, ok := f.index[fieldKey(name)]
	if !ok {
		return "", false
	}
	return f.list[i].Value, true
}

// Value returns the value of the named field, or "" if absent.
func (f *Fields) Value(name string) string {
	v, _ := f.Get(name)
	return v
}

// Has reports whether the named field is present.
func (f *Fields) Has(name string) bool {
	_, ok := f.index[fieldKey(name)]
	return ok
}

// Members returns the list members of the named field's value.
func (f *Fields) Members(name string) []string {
	v, ok := f.Get(name)
	if !ok {
		return nil
	}
	return FieldValueMembers(v)
}

// Append adds a field. If the name is already present the value is appended
// to the existing one, separated by ", ".
func (f *Fields) Append(name, value string) {
	key := fieldKey(name)
	if i, ok := f.index[key]; ok {
		f.list[i].Value += ", " + value
		return
	}
	f.add(key, value)
}

// Set replaces the value of the named field in place, or appends it.
func (f *Fields) Set(name, value string) {
	key := fieldKey(name)
	if i, ok := f.index[key]; ok {
		f.list[i].Value = value
		return
	}
	f.add(key, value)
}

// Del removes the named field.
func (f *Fields) Del(name string) {
	key := fieldKey(name)
	i, ok := f.index[key]
	if !ok {
		return
	}
	f.list = append(f.list[:i], f.list[i+1:]...)
	delete(f.index, key)
	for j := i; j < len(f.list); j++ {
		f.index[f.list[j].Name] = j
	}
}

func (f *Fields) add(key, value string) {
	if f.index == nil {
		f.index = make(map[string]int)
	}
	f.index[key] = len(f.list)
	f.list = append(f.list, Field{Name: key, Value: value})
}

// AppendFieldLine parses "name:" OWS value and appends it.
// Only SP after the colon is skipped; the value is otherwise kept verbatim.
func (f *Fields) AppendFieldLine(line string) error {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return badRequest("invalid field line syntax")
	}
	name := line[:colon]
	if !httpguts.ValidHeaderFieldName(name) {
		return badRequest("invalid field name %q", name)
	}
	value := strings.TrimLeft(line[colon+1:], " ")
	f.Append(name, value)
	return nil
}

// Equal reports whether f and o hold the same fields in the same order.
func (f *Fields) Equal(o *Fields) bool {
	if f.Len() != o.Len() {
		return false
	}
	for i := range f.list {
		if f.list[i] != o.list[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of f.
func (f *Fields) Clone() *Fields {
	c := &Fields{list: make([]Field, len(f.list))}
	copy(c.list, f.list)
	if len(f.index) > 0 {
		c.index = make(map[string]int, len(f.index))
		for k, v := range f.index {
			c.index[k] = v
		}
	}
	return c
}

// String returns the section in wire form without the terminating empty line.
func (f *Fields) String() string {
	return string(appendFields(nil, f))
}

// FieldValueMembers splits a list-valued field on OWS "," OWS, dropping
// empty members.
func FieldValueMembers(value string) []string {
	var members []string
	for _, m := range strings.Split(value, ",") {
		m = strings.Trim(m, " \t")
		if m != "" {
			members = append(members, m)
		}
	}
	return members
}

// ReadFields reads field lines up to and including the empty line ending the
// section. Each line may hold at most maxLine bytes and the whole section,
// including line endings, at most maxSection bytes.
func ReadFields(r *linereader.Reader, maxLine, maxSection int) (*Fields, error) {
	r.EnableLimit(int64(maxSection) + 2)
	defer r.DisableLimit()

	fields := NewFields()
	buf := make([]byte, maxLine)
	for {
		n, err := r.ReadLine(buf)
		switch {
		case err == nil:
		case errors.Is(err, linereader.ErrBudgetExceeded):
			return nil, badRequest("length of field section exceeds limit")
		case errors.Is(err, linereader.ErrCannotContain):
			return nil, badRequest("length of field line exceeds limit")
		case err == io.EOF:
			return nil, WrapError(KindBadRequest, "field section not terminated", io.ErrUnexpectedEOF)
		default:
			return nil, ioError(err)
		}
		if n == 0 {
			return fields, nil
		}
		if err := fields.AppendFieldLine(string(buf[:n])); err != nil {
			return nil, err
		}
	}
}
