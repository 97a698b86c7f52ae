package bench

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nislab/gensync/pkg/gensync"
	"github.com/nislab/gensync/pkg/models"
)

func newTestRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func writeParamFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "params.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing param file: %v", err)
	}
	return path
}

func TestSerializeParseIdentity(t *testing.T) {
	cases := []struct {
		proto  gensync.SyncProtocol
		params gensync.Params
	}{
		{gensync.CPISync, gensync.CPISyncParams{MBar: 4, Bits: 32, Epsilon: 33, Partitions: 2, PFactor: 0, Redundant: 1, Hashes: true}},
		{gensync.InteractiveCPISync, gensync.CPISyncParams{MBar: 4, Bits: 32, Epsilon: 33, PFactor: 4}},
		{gensync.IBLTSync, gensync.IBLTParams{Expected: 16, EltSize: 64}},
		{gensync.IBLTSetOfSets, gensync.IBLTParams{Expected: 8, EltSize: 32, NumElemChild: 12}},
		{gensync.CuckooSync, gensync.CuckooParams{FngprtSize: 12, BucketSize: 4, FilterSize: 1024, MaxKicks: 500}},
		{gensync.FullSync, gensync.FullSyncParams{}},
	}

	for _, c := range cases {
		var sb strings.Builder
		bp := FromMethod(c.proto, c.params, "")
		if err := bp.WriteTo(&sb); err != nil {
			t.Fatalf("%s: WriteTo: %v", c.proto, err)
		}
		// Terminate with an empty second section so both blocks exist.
		content := sb.String() + "\n" + DelimLine + "\n"
		path := writeParamFile(t, content)

		got, err := Load(path)
		if err != nil {
			t.Fatalf("%s: Load: %v", c.proto, err)
		}
		if got.Protocol != c.proto {
			t.Errorf("%s: protocol = %v", c.proto, got.Protocol)
		}
		if got.Params.String() != c.params.String() {
			t.Errorf("%s: params = %q, want %q", c.proto, got.Params.String(), c.params.String())
		}
	}
}

func TestLoadElements(t *testing.T) {
	a := []*models.DataObject{
		models.NewDataObjectFromUint64(10),
		models.NewDataObjectFromUint64(20),
	}
	b := []*models.DataObject{
		models.NewDataObjectFromUint64(30),
	}

	var sb strings.Builder
	fmt.Fprintln(&sb, "0")
	fmt.Fprintln(&sb, "m_bar: 4")
	fmt.Fprintln(&sb, "bits: 32")
	fmt.Fprintln(&sb, "epsilon: 33")
	fmt.Fprintln(&sb, "partitions: 0")
	fmt.Fprintln(&sb, "pFactor: 0")
	fmt.Fprintln(&sb, "redundant: 0")
	fmt.Fprintln(&sb, "hashes: false")
	fmt.Fprintln(&sb, DelimLine)
	for _, d := range a {
		fmt.Fprintln(&sb, d.Base64())
	}
	fmt.Fprintln(&sb, DelimLine)
	for _, d := range b {
		fmt.Fprintln(&sb, d.Base64())
	}
	path := writeParamFile(t, sb.String())

	bp, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	gotA := Drain(bp.AElems)
	if len(gotA) != 2 || !gotA[0].Equal(a[0]) || !gotA[1].Equal(a[1]) {
		t.Errorf("Block A = %v, want %v", gotA, a)
	}
	gotB := Drain(bp.BElems)
	if len(gotB) != 1 || !gotB[0].Equal(b[0]) {
		t.Errorf("Block B = %v, want %v", gotB, b)
	}
}

func TestLoadMissingRequiredKey(t *testing.T) {
	content := "0\nm_bar: 4\nbits: 32\n" + DelimLine + "\n"
	path := writeParamFile(t, content)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected parameter-parse error for missing epsilon")
	}
	if !models.IsKind(err, models.ErrParameterParse) {
		t.Errorf("Error = %v, want parameter-parse", err)
	}
}

func TestLoadRedundantDefaultsToZero(t *testing.T) {
	content := "0\nm_bar: 4\nbits: 32\nepsilon: 33\npartitions: 0\nhashes: false\n" +
		DelimLine + "\n" + DelimLine + "\n"
	path := writeParamFile(t, content)
	bp, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p := bp.Params.(gensync.CPISyncParams)
	if p.Redundant != 0 || p.PFactor != 0 {
		t.Errorf("Absent redundant/pFactor must parse as zero, got %+v", p)
	}
}

func TestLoadReference(t *testing.T) {
	dir := t.TempDir()

	dataPath := filepath.Join(dir, "data.txt")
	data := "header ignored\n" + DelimLine + "\n" +
		models.NewDataObjectFromUint64(7).Base64() + "\n" +
		DelimLine + "\n" +
		models.NewDataObjectFromUint64(8).Base64() + "\n"
	if err := os.WriteFile(dataPath, []byte(data), 0o644); err != nil {
		t.Fatalf("writing data file: %v", err)
	}

	paramPath := filepath.Join(dir, "params.txt")
	content := "6\nFullSync\n" + DelimLine + "\nReference: data.txt\n"
	if err := os.WriteFile(paramPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing param file: %v", err)
	}

	bp, err := Load(paramPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	gotA := Drain(bp.AElems)
	if len(gotA) != 1 || gotA[0].ToInt().Uint64() != 7 {
		t.Errorf("Referenced block A = %v, want [7]", gotA)
	}
	gotB := Drain(bp.BElems)
	if len(gotB) != 1 || gotB[0].ToInt().Uint64() != 8 {
		t.Errorf("Referenced block B = %v, want [8]", gotB)
	}
}

func TestZipfBoundsAndDeterminism(t *testing.T) {
	z1 := NewZipf(newTestRand(5), 1.0)
	z2 := NewZipf(newTestRand(5), 1.0)
	for i := 0; i < 500; i++ {
		a := z1.Draw(100)
		b := z2.Draw(100)
		if a < 1 || a > 100 {
			t.Fatalf("Zipf draw %d out of [1, 100]", a)
		}
		if a != b {
			t.Fatal("Equal seeds must produce equal Zipf streams")
		}
	}
}

func TestZipfSkew(t *testing.T) {
	z := NewZipf(newTestRand(7), 1.0)
	ones := 0
	n := 2000
	for i := 0; i < n; i++ {
		if z.Draw(50) == 1 {
			ones++
		}
	}
	// With alpha=1 and n=50, P(1) = 1/H_50 ~ 0.22.
	if ones < n/10 {
		t.Errorf("Rank 1 drawn %d/%d times, distribution not Zipf-skewed", ones, n)
	}
}
