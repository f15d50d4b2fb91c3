package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// JobType tags the kind of document a job produces.
type JobType string

const (
	BusinessPlan  JobType = "BUSINESS_PLAN"
	MarketingPlan JobType = "MARKETING_PLAN"
)

var (
	ErrUnknownJobType = errors.New("unknown job type")
	ErrTemplate       = errors.New("section template render failed")
)

// Section is one ordered unit of a document type.
type Section struct {
	Name                string
	Title               string
	Order               int
	InstructionTemplate string
}

// Entry is the immutable section list for one document type.
// Changing an entry while jobs are in flight is not supported; bump Version instead.
type Entry struct {
	Type     JobType
	Title    string
	Version  int
	Sections []Section

	templates []*template.Template
}

// Total returns the number of sections in the entry.
func (e Entry) Total() int {
	return len(e.Sections)
}

// Render executes the instruction template of section i against data.
func (e Entry) Render(i int, data any) (string, error) {
	if i < 0 || i >= len(e.templates) {
		return "", fmt.Errorf("%w: section index %d out of range for %s", ErrTemplate, i, e.Type)
	}
	var buf bytes.Buffer
	if err := e.templates[i].Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %s/%s: %v", ErrTemplate, e.Type, e.Sections[i].Name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

var registry = map[JobType]Entry{}

// NewEntry sorts sections by Order and compiles their templates.
// Templates reject missing keys so a malformed catalog fails at render time, not silently.
func NewEntry(t JobType, title string, version int, sections []Section) (Entry, error) {
	if len(sections) == 0 {
		return Entry{}, fmt.Errorf("%w: %s has no sections", ErrTemplate, t)
	}
	e := Entry{Type: t, Title: title, Version: version, Sections: append([]Section(nil), sections...)}
	sort.SliceStable(e.Sections, func(i, j int) bool { return e.Sections[i].Order < e.Sections[j].Order })
	e.templates = make([]*template.Template, len(e.Sections))
	for i, s := range e.Sections {
		name := string(e.Type) + "/" + s.Name
		tmpl, err := template.New(name).Option("missingkey=error").Parse(s.InstructionTemplate)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %s: %v", ErrTemplate, name, err)
		}
		e.templates[i] = tmpl
	}
	return e, nil
}

func register(e Entry) {
	compiled, err := NewEntry(e.Type, e.Title, e.Version, e.Sections)
	if err != nil {
		panic(err)
	}
	registry[e.Type] = compiled
}

// Lookup returns the catalog entry for jobType.
func Lookup(jobType JobType) (Entry, error) {
	e, ok := registry[jobType]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}
	return e, nil
}

// Types lists the supported job types in a stable order.
func Types() []JobType {
	out := make([]JobType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseJobType normalizes a caller supplied job type tag.
func ParseJobType(raw string) (JobType, error) {
	t := JobType(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := registry[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownJobType, raw)
	}
	return t, nil
}
