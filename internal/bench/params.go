// Package bench holds the benchmark-harness collaborators: the parameter
// file format, element generators, and observation records.
package bench

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nislab/gensync/pkg/gensync"
	"github.com/nislab/gensync/pkg/models"
)

// DelimLine separates sections of a parameter file.
var DelimLine = strings.Repeat("-", 80)

// ReferenceKey prefixes a line naming an external element-data file.
const ReferenceKey = "Reference"

// KeyValSep splits parameter lines.
const KeyValSep = ":"

// BenchParams is a fully loaded benchmark configuration: the protocol, its
// parameter variant, and the two element sources.
type BenchParams struct {
	Protocol gensync.SyncProtocol
	Params   gensync.Params

	// SketchesLine preserves the sketches snapshot recorded with the
	// parameters, if any.
	SketchesLine string

	AElems DataObjectGenerator
	BElems DataObjectGenerator
}

// parseErr builds the parameter-parse failure carrying the offending line.
func parseErr(line, why string) error {
	return models.NewSyncError(models.ErrParameterParse, "%s (line: %q)", why, line)
}

// keyValue splits "key: value"; missing separator is a parse failure.
func keyValue(line string) (string, string, error) {
	i := strings.Index(line, KeyValSep)
	if i < 0 {
		return "", "", parseErr(line, "expected key: value")
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), nil
}

func intValue(kv map[string]string, key string, required bool, line string) (int, error) {
	v, ok := kv[key]
	if !ok {
		if required {
			return 0, parseErr(line, fmt.Sprintf("missing required key %q", key))
		}
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, parseErr(v, fmt.Sprintf("key %q is not an integer", key))
	}
	return n, nil
}

func boolValue(kv map[string]string, key string, required bool, line string) (bool, error) {
	v, ok := kv[key]
	if !ok {
		if required {
			return false, parseErr(line, fmt.Sprintf("missing required key %q", key))
		}
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, parseErr(v, fmt.Sprintf("key %q is not a boolean", key))
	}
	return b, nil
}

// parseParams consumes the key:value block for the protocol, recording the
// sketches line when present and stopping at the section delimiter (which is
// pushed back by returning it).
func parseParams(sc *bufio.Scanner, proto gensync.SyncProtocol) (gensync.Params, string, string, error) {
	kv := make(map[string]string)
	var block []string
	sketches := ""
	stopped := ""
	for sc.Scan() {
		line := sc.Text()
		if line == DelimLine {
			stopped = line
			break
		}
		if strings.HasPrefix(line, "Sketches"+KeyValSep) {
			sketches = line
			continue
		}
		block = append(block, line)
		if proto == gensync.FullSync {
			// FullSync carries a single marker line, no keys.
			continue
		}
		k, v, err := keyValue(line)
		if err != nil {
			return nil, "", "", err
		}
		kv[k] = v
	}

	blockText := strings.Join(block, "\n")
	switch {
	case proto.IsCPIFamily():
		mBar, err := intValue(kv, "m_bar", true, blockText)
		if err != nil {
			return nil, "", "", err
		}
		bits, err := intValue(kv, "bits", true, blockText)
		if err != nil {
			return nil, "", "", err
		}
		epsilon, err := intValue(kv, "epsilon", true, blockText)
		if err != nil {
			return nil, "", "", err
		}
		partitions, err := intValue(kv, "partitions", false, blockText)
		if err != nil {
			return nil, "", "", err
		}
		pFactor, err := intValue(kv, "pFactor", false, blockText)
		if err != nil {
			return nil, "", "", err
		}
		// redundant is canonical here; an absent line reads as zero.
		redundant, err := intValue(kv, "redundant", false, blockText)
		if err != nil {
			return nil, "", "", err
		}
		hashes, err := boolValue(kv, "hashes", true, blockText)
		if err != nil {
			return nil, "", "", err
		}
		return gensync.CPISyncParams{
			MBar: mBar, Bits: bits, Epsilon: epsilon,
			Partitions: partitions, PFactor: pFactor,
			Redundant: redundant, Hashes: hashes,
		}, sketches, stopped, nil

	case proto.IsIBLTFamily():
		expected, err := intValue(kv, "expected", true, blockText)
		if err != nil {
			return nil, "", "", err
		}
		eltSize, err := intValue(kv, "eltSize", true, blockText)
		if err != nil {
			return nil, "", "", err
		}
		numElemChild, err := intValue(kv, "numElemChild", false, blockText)
		if err != nil {
			return nil, "", "", err
		}
		return gensync.IBLTParams{
			Expected: expected, EltSize: eltSize, NumElemChild: numElemChild,
		}, sketches, stopped, nil

	case proto == gensync.CuckooSync:
		fngprt, err := intValue(kv, "fngprtSize", true, blockText)
		if err != nil {
			return nil, "", "", err
		}
		bucket, err := intValue(kv, "bucketSize", true, blockText)
		if err != nil {
			return nil, "", "", err
		}
		filter, err := intValue(kv, "filterSize", true, blockText)
		if err != nil {
			return nil, "", "", err
		}
		kicks, err := intValue(kv, "maxKicks", true, blockText)
		if err != nil {
			return nil, "", "", err
		}
		return gensync.CuckooParams{
			FngprtSize: fngprt, BucketSize: bucket,
			FilterSize: filter, MaxKicks: kicks,
		}, sketches, stopped, nil

	case proto == gensync.FullSync:
		return gensync.FullSyncParams{}, sketches, stopped, nil
	}
	return nil, "", "", parseErr(blockText, fmt.Sprintf("no parameter block for protocol %s", proto))
}

// Load reconstructs benchmark parameters from a file. The format is the
// protocol ordinal on the first line, the key:value parameter block, an
// optional sketches line, then the delimited element sections: either a
// Reference line naming a data file (resolved relative to this file) or
// two base64 element blocks.
func Load(path string) (*BenchParams, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.WrapSyncError(models.ErrParameterParse, err, "open parameter file")
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		return nil, parseErr("", "empty parameter file")
	}
	first := strings.TrimSpace(sc.Text())
	// The first line may carry a descriptive key prefix; the ordinal is
	// what follows the separator, or the whole line when bare.
	ordText := first
	if i := strings.LastIndex(first, KeyValSep); i >= 0 {
		ordText = strings.TrimSpace(first[i+1:])
	}
	ord, err := strconv.Atoi(ordText)
	if err != nil {
		return nil, parseErr(first, "protocol ordinal expected")
	}
	proto, err := gensync.ProtocolFromOrdinal(ord)
	if err != nil {
		return nil, parseErr(first, err.Error())
	}

	params, sketchesLine, stopped, err := parseParams(sc, proto)
	if err != nil {
		return nil, err
	}
	if stopped != DelimLine {
		return nil, parseErr(stopped, "section delimiter expected after parameters")
	}

	bp := &BenchParams{
		Protocol:     proto,
		Params:       params,
		SketchesLine: sketchesLine,
	}

	// Peek the next line: a Reference or the first element of block A.
	dataFile := path
	if sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, ReferenceKey+KeyValSep) {
			_, ref, kerr := keyValue(line)
			if kerr != nil {
				return nil, kerr
			}
			dataFile = filepath.Join(filepath.Dir(path), ref)
		}
	}

	bp.AElems = NewFromFileGen(dataFile, FirstBlock)
	bp.BElems = NewFromFileGen(dataFile, SecondBlock)
	return bp, nil
}

// FromMethod captures the parameters of a built session; the element
// generators stay empty.
func FromMethod(proto gensync.SyncProtocol, params gensync.Params, sketchesLine string) *BenchParams {
	return &BenchParams{Protocol: proto, Params: params, SketchesLine: sketchesLine}
}

// WriteTo serializes the parameter payload in the on-disk form, through
// the element-section delimiter.
func (bp *BenchParams) WriteTo(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Sync protocol: %d\n", int(bp.Protocol)); err != nil {
		return err
	}
	if err := writeParams(w, bp.Params); err != nil {
		return err
	}
	if bp.SketchesLine != "" {
		if _, err := fmt.Fprintln(w, bp.SketchesLine); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, DelimLine)
	return err
}

func writeParams(w io.Writer, p gensync.Params) error {
	switch v := p.(type) {
	case gensync.CPISyncParams:
		_, err := fmt.Fprintf(w,
			"m_bar: %d\nbits: %d\nepsilon: %d\npartitions: %d\npFactor: %d\nredundant: %d\nhashes: %t\n",
			v.MBar, v.Bits, v.Epsilon, v.Partitions, v.PFactor, v.Redundant, v.Hashes)
		return err
	case gensync.IBLTParams:
		_, err := fmt.Fprintf(w, "expected: %d\neltSize: %d\nnumElemChild: %d\n",
			v.Expected, v.EltSize, v.NumElemChild)
		return err
	case gensync.CuckooParams:
		_, err := fmt.Fprintf(w, "fngprtSize: %d\nbucketSize: %d\nfilterSize: %d\nmaxKicks: %d\n",
			v.FngprtSize, v.BucketSize, v.FilterSize, v.MaxKicks)
		return err
	case gensync.FullSyncParams:
		_, err := fmt.Fprintln(w, "FullSync")
		return err
	}
	return fmt.Errorf("unknown params variant %T", p)
}
