package deb

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidStanza is returned for lines that are neither a field, a
// continuation, nor a paragraph separator.
var ErrInvalidStanza = errors.New("invalid stanza")

var fieldPattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9-]*):[ \t]*(.*)$`)

// Stanza is one paragraph of a control file, a Packages index or a Release
// file. Field names are matched case-insensitively.
type Stanza struct {
	names  []string          // as first written
	values map[string]string // keyed by lower-case name
}

// Get returns the value of field f, or "" if it is absent. Folded values
// keep their line breaks.
func (s *Stanza) Get(f ControlField) string {
	return s.values[strings.ToLower(string(f))]
}

// Lookup is Get for any field name, reporting whether it is present.
func (s *Stanza) Lookup(name string) (string, bool) {
	v, ok := s.values[strings.ToLower(name)]
	return v, ok
}

// Fields returns the field names in the order they appeared.
func (s *Stanza) Fields() []string { return s.names }

// Len returns the number of fields.
func (s *Stanza) Len() int { return len(s.names) }

func (s *Stanza) set(name, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	key := strings.ToLower(name)
	if _, ok := s.values[key]; !ok {
		s.names = append(s.names, name)
	}
	s.values[key] = value
}

// StanzaReader assembles stanzas from lines fed one at a time, so that an
// index can be parsed while it downloads.
type StanzaReader struct {
	line    int
	current *Stanza
	key     string
	value   strings.Builder
}

// Line consumes one line, without its terminator. emit is called with each
// stanza completed by a blank line.
func (r *StanzaReader) Line(line string, emit func(*Stanza) error) error {
	r.line++
	switch {
	case strings.TrimSpace(line) == "":
		return r.flush(emit)
	case line[0] == ' ' || line[0] == '\t':
		if r.key == "" {
			return fmt.Errorf("%w: line %d: continuation without a field", ErrInvalidStanza, r.line)
		}
		r.value.WriteString("\n" + line)
		return nil
	case line[0] == '#':
		return nil
	}
	m := fieldPattern.FindStringSubmatch(line)
	if m == nil {
		return fmt.Errorf("%w: line %d: %q", ErrInvalidStanza, r.line, line)
	}
	r.endField()
	if r.current == nil {
		r.current = &Stanza{}
	}
	r.key = m[1]
	r.value.WriteString(m[2])
	return nil
}

// Close emits the last stanza if the input did not end with a blank line.
func (r *StanzaReader) Close(emit func(*Stanza) error) error {
	return r.flush(emit)
}

func (r *StanzaReader) endField() {
	if r.key == "" {
		return
	}
	r.current.set(r.key, strings.TrimSpace(r.value.String()))
	r.key = ""
	r.value.Reset()
}

func (r *StanzaReader) flush(emit func(*Stanza) error) error {
	r.endField()
	if r.current == nil {
		return nil
	}
	s := r.current
	r.current = nil
	return emit(s)
}

// ParseStanzas parses a whole document of blank-line separated stanzas.
func ParseStanzas(text string) ([]*Stanza, error) {
	var (
		r   StanzaReader
		out []*Stanza
	)
	emit := func(s *Stanza) error {
		out = append(out, s)
		return nil
	}
	for _, line := range strings.Split(text, "\n") {
		if err := r.Line(strings.TrimSuffix(line, "\r"), emit); err != nil {
			return nil, err
		}
	}
	if err := r.Close(emit); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseControl parses a control file made of exactly one stanza.
func ParseControl(text string) (*Stanza, error) {
	stanzas, err := ParseStanzas(text)
	if err != nil {
		return nil, err
	}
	if len(stanzas) != 1 {
		return nil, fmt.Errorf("%w: control file has %d stanzas", ErrInvalidStanza, len(stanzas))
	}
	return stanzas[0], nil
}

// SplitList splits a comma-separated field value, trimming whitespace from
// each element. It returns nil if the value is empty.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		res = append(res, strings.TrimSpace(p))
	}
	return res
}
