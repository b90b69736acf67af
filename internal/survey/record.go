package survey

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Record is a flat set of survey answers keyed by internal field key.
// Scalar answers (text, enum codes, "yes"/"no") live in Values; multi-value
// answers live in Lists.
type Record struct {
	Values map[string]string   `json:"values"`
	Lists  map[string][]string `json:"lists"`
}

// NewRecord returns an empty record ready for use.
func NewRecord() Record {
	return Record{
		Values: make(map[string]string),
		Lists:  make(map[string][]string),
	}
}

// Get returns the scalar value for key, or "".
func (r Record) Get(key string) string {
	if r.Values == nil {
		return ""
	}
	return r.Values[key]
}

// List returns the multi-value list for key.
func (r Record) List(key string) []string {
	if r.Lists == nil {
		return nil
	}
	return r.Lists[key]
}

// Set stores a scalar value.
func (r *Record) Set(key, value string) {
	if r.Values == nil {
		r.Values = make(map[string]string)
	}
	r.Values[key] = value
}

// SetList stores a multi-value list.
func (r *Record) SetList(key string, values []string) {
	if r.Lists == nil {
		r.Lists = make(map[string][]string)
	}
	r.Lists[key] = values
}

// Merge copies every answer from other into r, overwriting existing keys.
func (r *Record) Merge(other Record) {
	for k, v := range other.Values {
		r.Set(k, v)
	}
	for k, v := range other.Lists {
		r.SetList(k, v)
	}
}

// Section returns a copy of r restricted to the fields of one section.
func (r Record) Section(s Section) Record {
	out := NewRecord()
	for _, f := range SectionFields(s) {
		if f.Kind == KindMulti {
			if l, ok := r.Lists[f.Key]; ok {
				out.Lists[f.Key] = l
			}
			continue
		}
		if v, ok := r.Values[f.Key]; ok {
			out.Values[f.Key] = v
		}
	}
	return out
}

// SetAny stores a decoded JSON value under key, coercing it to the shape the
// catalog expects. Unknown keys are ignored.
func (r *Record) SetAny(key string, v any) {
	f, ok := Lookup(key)
	if !ok {
		return
	}

	if f.Kind == KindMulti {
		switch t := v.(type) {
		case []any:
			items := make([]string, 0, len(t))
			for _, item := range t {
				items = append(items, scalarString(item))
			}
			r.SetList(key, Dedupe(items))
		case []string:
			r.SetList(key, Dedupe(t))
		case string:
			r.SetList(key, SplitMulti(t))
		case nil:
		default:
			r.SetList(key, SplitMulti(scalarString(t)))
		}
		return
	}

	if f.Kind == KindBool {
		if b, ok := v.(bool); ok {
			r.Set(key, yesNoCode(b))
			return
		}
	}
	if v == nil {
		return
	}
	r.Set(key, scalarString(v))
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func yesNoCode(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// RecordFromSections builds a record from the nested JSON shape used by the
// survey API: {"basic_info": {"last_name": "..."}, "office_data": {...}}.
// Section names that are not form sections are ignored.
func RecordFromSections(sections map[string]map[string]any) Record {
	rec := NewRecord()
	for name, answers := range sections {
		if !IsSection(name) {
			continue
		}
		for key, v := range answers {
			f, ok := Lookup(key)
			if !ok || string(f.Section) != name {
				continue
			}
			rec.SetAny(key, v)
		}
	}
	return rec
}

// FieldErrors maps field keys to user-facing validation messages.
type FieldErrors map[string][]string

// Add records a message for a field.
func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Merge copies all messages from other.
func (e FieldErrors) Merge(other FieldErrors) {
	for k, msgs := range other {
		e[k] = append(e[k], msgs...)
	}
}

// Empty reports whether no messages were recorded.
func (e FieldErrors) Empty() bool {
	return len(e) == 0
}

// Messages flattens the errors into "Label: message" strings in catalog order.
func (e FieldErrors) Messages() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return fieldOrder(keys[i]) < fieldOrder(keys[j])
	})

	var out []string
	for _, k := range keys {
		label := k
		if f, ok := Lookup(k); ok {
			label = f.Label
		}
		for _, m := range e[k] {
			out = append(out, label+": "+m)
		}
	}
	return out
}

// String joins all messages with "; ".
func (e FieldErrors) String() string {
	return strings.Join(e.Messages(), "; ")
}

var orderIndex = func() map[string]int {
	m := make(map[string]int, len(catalog))
	for i, f := range catalog {
		m[f.Key] = i
	}
	return m
}()

func fieldOrder(key string) int {
	if i, ok := orderIndex[key]; ok {
		return i
	}
	return len(catalog)
}
