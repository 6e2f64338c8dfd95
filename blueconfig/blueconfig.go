// Package blueconfig parses the BlueConfig block-structured text format used
// to describe a circuit simulation run: paths, stimuli, connection rules,
// projections and reporting directives.
package blueconfig

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Block kinds understood by the simulator. Unknown kinds are kept so a file
// can round-trip, but Validate flags them.
const (
	KindRun            = "Run"
	KindCircuit        = "Circuit"
	KindConditions     = "Conditions"
	KindStimulus       = "Stimulus"
	KindStimulusInject = "StimulusInject"
	KindReport         = "Report"
	KindConnection     = "Connection"
	KindProjection     = "Projection"
	KindModification   = "Modification"
	KindElectrode      = "Electrode"
)

// ParseError describes a syntax error with its position in the input.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("blueconfig: line %d: %s", e.Line, e.Msg)
}

// Block is a single named section of a BlueConfig file, e.g. a
// "Stimulus ThresholdExc" block with its key/value fields.
type Block struct {
	Kind string
	Name string
	Line int

	fields map[string]string
	order  []string // field order, preserved for Write
}

// Get returns the raw string value of a field.
func (b *Block) Get(key string) (string, bool) {
	v, ok := b.fields[key]
	return v, ok
}

// GetString returns the field value, or def when the field is absent.
func (b *Block) GetString(key, def string) string {
	if v, ok := b.fields[key]; ok {
		return v
	}
	return def
}

// GetFloat parses the field as a float. Absent fields return def.
func (b *Block) GetFloat(key string, def float64) (float64, error) {
	v, ok := b.fields[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("blueconfig: %s %s: field %s: %q is not a number", b.Kind, b.Name, key, v)
	}
	return f, nil
}

// GetInt parses the field as an integer. Absent fields return def.
func (b *Block) GetInt(key string, def int) (int, error) {
	v, ok := b.fields[key]
	if !ok {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("blueconfig: %s %s: field %s: %q is not an integer", b.Kind, b.Name, key, v)
	}
	return i, nil
}

// Set stores a field value, keeping first-seen order for serialisation.
func (b *Block) Set(key, value string) {
	if b.fields == nil {
		b.fields = make(map[string]string)
	}
	if _, seen := b.fields[key]; !seen {
		b.order = append(b.order, key)
	}
	b.fields[key] = value
}

// Keys returns the field names in file order.
func (b *Block) Keys() []string {
	return append([]string(nil), b.order...)
}

// Fields returns a copy of the field map.
func (b *Block) Fields() map[string]string {
	out := make(map[string]string, len(b.fields))
	for k, v := range b.fields {
		out[k] = v
	}
	return out
}

// File is a parsed BlueConfig: an ordered list of blocks indexed by kind and
// name.
type File struct {
	blocks []*Block
	index  map[string]*Block
}

func blockKey(kind, name string) string {
	return kind + "\x00" + name
}

// Blocks returns all blocks of a given kind, in file order.
func (f *File) Blocks(kind string) []*Block {
	var out []*Block
	for _, b := range f.blocks {
		if b.Kind == kind {
			out = append(out, b)
		}
	}
	return out
}

// Block looks up a block by kind and name.
func (f *File) Block(kind, name string) (*Block, bool) {
	b, ok := f.index[blockKey(kind, name)]
	return b, ok
}

// All returns every block in file order.
func (f *File) All() []*Block {
	return append([]*Block(nil), f.blocks...)
}

func (f *File) add(b *Block) error {
	key := blockKey(b.Kind, b.Name)
	if prev, dup := f.index[key]; dup {
		return &ParseError{Line: b.Line, Msg: fmt.Sprintf(
			"duplicate block %s %s (first declared at line %d)", b.Kind, b.Name, prev.Line)}
	}
	if f.index == nil {
		f.index = make(map[string]*Block)
	}
	f.index[key] = b
	f.blocks = append(f.blocks, b)
	return nil
}

// Parse reads a BlueConfig document. Blocks have the form
//
//	Kind Name
//	{
//	    key value...
//	}
//
// where values run to the end of the line. '#' starts a comment. The opening
// brace may also share the header line.
func Parse(r io.Reader) (*File, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	file := &File{}
	var cur *Block
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}

		if cur == nil {
			header := line
			brace := false
			if strings.HasSuffix(header, "{") {
				header = strings.TrimSpace(strings.TrimSuffix(header, "{"))
				brace = true
			}
			if header == "{" || header == "" {
				return nil, &ParseError{Line: lineNo, Msg: "block body without a header"}
			}
			parts := strings.Fields(header)
			if len(parts) != 2 {
				return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf(
					"expected 'Kind Name' block header, got %q", header)}
			}
			cur = &Block{Kind: parts[0], Name: parts[1], Line: lineNo}
			if brace {
				cur.Line = lineNo
			} else {
				// The opening brace is expected on the next line.
				if !scanner.Scan() {
					return nil, &ParseError{Line: lineNo, Msg: "unexpected end of file after block header"}
				}
				lineNo++
				open := strings.TrimSpace(stripComment(scanner.Text()))
				if open != "{" {
					return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("expected '{', got %q", open)}
				}
			}
			continue
		}

		if line == "}" {
			if err := file.add(cur); err != nil {
				return nil, err
			}
			cur = nil
			continue
		}

		key, value, _ := strings.Cut(line, " ")
		if key == "" {
			return nil, &ParseError{Line: lineNo, Msg: "empty field name"}
		}
		cur.Set(key, strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("blueconfig: read: %w", err)
	}
	if cur != nil {
		return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf(
			"unterminated block %s %s", cur.Kind, cur.Name)}
	}
	return file, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}
