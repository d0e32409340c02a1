package framing

import (
	"bytes"

	"github.com/kubev2v/logdriver-e2e/internal/models"
)

// Line is one logical line rebuilt from one or more frames.
type Line struct {
	Source    string
	TimeNano  int64
	Data      []byte
	Fragments int
}

// Assembler concatenates partial records until a record with Partial unset.
type Assembler struct {
	buf       bytes.Buffer
	fragments int
	first     models.LogRecord
}

// Add appends a fragment. complete is true when rec terminated a logical line;
// the returned line then carries the source and timestamp of its first fragment.
func (a *Assembler) Add(rec models.LogRecord) (Line, bool) {
	if a.fragments == 0 {
		a.first = rec
	}
	a.fragments++
	a.buf.Write(rec.Line)
	if rec.Partial {
		return Line{}, false
	}
	return a.take(), true
}

// Pending reports an unterminated tail, if any, without resetting it.
func (a *Assembler) Pending() (Line, bool) {
	if a.fragments == 0 {
		return Line{}, false
	}
	return a.line(), true
}

// Flush returns the unterminated tail and resets the assembler.
func (a *Assembler) Flush() (Line, bool) {
	if a.fragments == 0 {
		return Line{}, false
	}
	return a.take(), true
}

func (a *Assembler) line() Line {
	return Line{
		Source:    a.first.Source,
		TimeNano:  a.first.TimeNano,
		Data:      bytes.Clone(a.buf.Bytes()),
		Fragments: a.fragments,
	}
}

func (a *Assembler) take() Line {
	l := a.line()
	a.buf.Reset()
	a.fragments = 0
	a.first = models.LogRecord{}
	return l
}

// Assemble groups records into logical lines. A trailing run of partial
// records is returned separately as tail.
func Assemble(recs []models.LogRecord) (lines []Line, tail *Line) {
	var a Assembler
	for _, rec := range recs {
		if l, ok := a.Add(rec); ok {
			lines = append(lines, l)
		}
	}
	if l, ok := a.Flush(); ok {
		tail = &l
	}
	return lines, tail
}
