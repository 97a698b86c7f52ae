package bench

import (
	"bufio"
	"log"
	"os"
	"strings"

	"github.com/nislab/gensync/pkg/models"
)

// DataObjectGenerator produces a stream of elements for a benchmark peer.
type DataObjectGenerator interface {
	// Produce returns the next element, or ok=false when the stream is
	// exhausted.
	Produce() (*models.DataObject, bool)
}

// WhichBlock selects the element section of a parameter file.
type WhichBlock int

const (
	FirstBlock WhichBlock = iota
	SecondBlock
)

// FromFileGen streams base64-encoded elements out of a parameter file
// block. The stream fast-forwards to its block on first use: the first
// block starts after the first delimiter line, the second after the second
// (delimiters counted post-increment).
type FromFileGen struct {
	path  string
	which WhichBlock

	file    *os.File
	scanner *bufio.Scanner
	done    bool
}

// NewFromFileGen builds the generator; the file is opened lazily so a
// missing data file surfaces on first Produce.
func NewFromFileGen(path string, which WhichBlock) *FromFileGen {
	return &FromFileGen{path: path, which: which}
}

func (g *FromFileGen) open() bool {
	f, err := os.Open(g.path)
	if err != nil {
		log.Printf("Warning: element data file %s: %v", g.path, err)
		g.done = true
		return false
	}
	g.file = f
	g.scanner = bufio.NewScanner(f)
	g.scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	delims := 0
	for g.scanner.Scan() {
		if !strings.Contains(g.scanner.Text(), DelimLine) {
			continue
		}
		delims++
		if g.which == FirstBlock || (g.which == SecondBlock && delims == 2) {
			return true
		}
	}
	g.done = true
	return false
}

// Produce returns the next element of the block; the stream ends at the
// next delimiter line or EOF.
func (g *FromFileGen) Produce() (*models.DataObject, bool) {
	if g.done {
		return nil, false
	}
	if g.scanner == nil {
		if !g.open() {
			return nil, false
		}
	}
	if !g.scanner.Scan() {
		g.close()
		return nil, false
	}
	line := g.scanner.Text()
	if strings.Contains(line, DelimLine) {
		g.close()
		return nil, false
	}
	d, err := models.DataObjectFromBase64(strings.TrimSpace(line))
	if err != nil {
		log.Printf("Warning: bad element line in %s: %v", g.path, err)
		g.close()
		return nil, false
	}
	return d, true
}

func (g *FromFileGen) close() {
	g.done = true
	if g.file != nil {
		_ = g.file.Close()
		g.file = nil
	}
}

// Drain collects the whole stream.
func Drain(g DataObjectGenerator) []*models.DataObject {
	var out []*models.DataObject
	for {
		d, ok := g.Produce()
		if !ok {
			return out
		}
		out = append(out, d)
	}
}
