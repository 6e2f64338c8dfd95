package blueconfig

import (
	"bufio"
	"fmt"
	"io"
)

// Write serialises the file in canonical form: header line, brace on its own
// line, four-space indented fields in original order. Parsed files round-trip
// modulo comments and spacing; it is also the output format of the
// SONATA-to-BlueConfig translation.
func (f *File) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i, b := range f.blocks {
		if i > 0 {
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(bw, "%s %s\n{\n", b.Kind, b.Name); err != nil {
			return err
		}
		for _, key := range b.order {
			if _, err := fmt.Fprintf(bw, "    %s %s\n", key, b.fields[key]); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString("}\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// NewBlock creates a block for programmatic construction (translators,
// tests).
func NewBlock(kind, name string) *Block {
	return &Block{Kind: kind, Name: name}
}

// Append adds a block to the file, rejecting duplicates.
func (f *File) Append(b *Block) error {
	return f.add(b)
}
