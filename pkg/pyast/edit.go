package pyast

import (
	"fmt"
	"sort"
	"strings"
)

// Edit replaces the bytes in Span with Text. An empty span inserts.
type Edit struct {
	Span Span
	Text string
}

// Edits is a set of non-overlapping source edits. Overlapping deletions are
// merged; any other overlap is an error.
type Edits []Edit

// Insert adds an insertion at offset.
func (e *Edits) Insert(offset int, text string) {
	*e = append(*e, Edit{Span: Span{Start: offset, End: offset}, Text: text})
}

// Replace adds a replacement of span.
func (e *Edits) Replace(span Span, text string) {
	*e = append(*e, Edit{Span: span, Text: text})
}

// Delete adds a deletion of span.
func (e *Edits) Delete(span Span) {
	*e = append(*e, Edit{Span: span})
}

// Apply returns src with every edit applied.
func (e Edits) Apply(src []byte) ([]byte, error) {
	if len(e) == 0 {
		return src, nil
	}
	edits := make([]Edit, len(e))
	copy(edits, e)
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].Span.Start != edits[j].Span.Start {
			return edits[i].Span.Start < edits[j].Span.Start
		}
		return edits[i].Span.End < edits[j].Span.End
	})

	merged := edits[:0:0]
	for _, ed := range edits {
		if ed.Span.Start < 0 || ed.Span.End > len(src) || ed.Span.Start > ed.Span.End {
			return nil, fmt.Errorf("edit %d:%d out of range", ed.Span.Start, ed.Span.End)
		}
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if ed.Span.Start < last.Span.End {
				if last.Text != "" || ed.Text != "" {
					return nil, fmt.Errorf("overlapping edits at %d:%d and %d:%d",
						last.Span.Start, last.Span.End, ed.Span.Start, ed.Span.End)
				}
				if ed.Span.End > last.Span.End {
					last.Span.End = ed.Span.End
				}
				continue
			}
		}
		merged = append(merged, ed)
	}

	var sb strings.Builder
	sb.Grow(len(src))
	pos := 0
	for _, ed := range merged {
		sb.Write(src[pos:ed.Span.Start])
		sb.WriteString(ed.Text)
		pos = ed.Span.End
	}
	sb.Write(src[pos:])
	return []byte(sb.String()), nil
}

// StatementRemoval widens a statement span so that deleting it leaves no
// stray separators. A statement that owns its lines takes them along with
// the blank lines that separated it when it is unindented; one sharing a
// line takes the adjoining ";".
func StatementRemoval(src []byte, s Span) Span {
	s = TrimSpace(src, s)
	end := s.End
	j := end
	for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
		j++
	}
	if j < len(src) && src[j] == ';' {
		j++
		for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
			j++
		}
		return Span{Start: s.Start, End: j}
	}

	i := s.Start
	for i > 0 && (src[i-1] == ' ' || src[i-1] == '\t') {
		i--
	}
	if i > 0 && src[i-1] == ';' {
		return Span{Start: i - 1, End: end}
	}
	if i > 0 && src[i-1] != '\n' {
		return s
	}

	k := j
	if k < len(src) && src[k] == '#' {
		for k < len(src) && src[k] != '\n' {
			k++
		}
	}
	if k < len(src) && src[k] == '\r' {
		k++
	}
	var lines Span
	switch {
	case k < len(src) && src[k] == '\n':
		lines = Span{Start: i, End: k + 1}
	case k == len(src):
		lines = Span{Start: i, End: k}
	default:
		return s
	}
	if i == s.Start {
		return absorbBlankLines(src, lines)
	}
	return lines
}

// absorbBlankLines extends a span of whole lines over the blank lines that
// follow it, or over the ones before it when nothing but blank lines follow.
func absorbBlankLines(src []byte, s Span) Span {
	for s.End < len(src) {
		j := skipBlanks(src, s.End)
		if j == len(src) {
			s.End = j
			break
		}
		if src[j] != '\n' {
			break
		}
		s.End = j + 1
	}
	if s.End < len(src) {
		return s
	}
	for s.Start > 0 {
		// src[s.Start-1] is the newline ending the previous line
		prev := s.Start - 1
		for prev > 0 && src[prev-1] != '\n' {
			prev--
		}
		if skipBlanks(src, prev) != s.Start-1 {
			break
		}
		s.Start = prev
	}
	return s
}

func skipBlanks(src []byte, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\r' || src[i] == '\f') {
		i++
	}
	return i
}

// LineIndent returns the indentation of the line containing offset.
func LineIndent(src []byte, offset int) string {
	i := offset
	for i > 0 && src[i-1] != '\n' {
		i--
	}
	j := i
	for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
		j++
	}
	return string(src[i:j])
}

// TrimSpace shrinks s so that it neither starts nor ends with whitespace.
// Suites and compound statements may end past their final newline.
func TrimSpace(src []byte, s Span) Span {
	for s.End > s.Start && isSpace(src[s.End-1]) {
		s.End--
	}
	for s.Start < s.End && isSpace(src[s.Start]) {
		s.Start++
	}
	return s
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f'
}
