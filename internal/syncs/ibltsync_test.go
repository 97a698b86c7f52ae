package syncs

import (
	"testing"

	"github.com/nislab/gensync/pkg/models"
)

func TestIBLTSyncDecode(t *testing.T) {
	// expected=16, 64-bit elements, |A delta B| = 12.
	client := NewIBLTSync(16, 8)
	server := NewIBLTSync(16, 8)
	common := seq(1000, 1099)
	addAll(client, common)
	addAll(server, common)
	addAll(client, seq(1, 6))     // client-only
	addAll(server, seq(501, 506)) // server-only

	srvRes, cliRes, srvErr, cliErr := runPair(server, client)
	if cliErr != nil || srvErr != nil {
		t.Fatalf("Sync failed: client %v, server %v", cliErr, srvErr)
	}
	if !cliRes.Success || !srvRes.Success {
		t.Fatal("Expected ok=true from the peel")
	}
	wantSet(t, "client self-minus-other", cliRes.SelfMinusOther, seq(1, 6))
	wantSet(t, "client other-minus-self", cliRes.OtherMinusSelf, seq(501, 506))
	wantSet(t, "server self-minus-other", srvRes.SelfMinusOther, seq(501, 506))
	wantSet(t, "server other-minus-self", srvRes.OtherMinusSelf, seq(1, 6))
}

func TestIBLTSyncOverload(t *testing.T) {
	// 200 differences against expected=16: partial decode reported on
	// both sides, never a silent miss.
	client := NewIBLTSync(16, 8)
	server := NewIBLTSync(16, 8)
	addAll(client, seq(1, 200))

	srvRes, cliRes, srvErr, cliErr := runPair(server, client)
	if cliErr == nil || srvErr == nil {
		t.Fatal("Expected partial-decode errors")
	}
	if !models.IsKind(cliErr, models.ErrPartialDecode) {
		t.Errorf("Client error = %v, want partial-decode", cliErr)
	}
	if !models.IsKind(srvErr, models.ErrPartialDecode) {
		t.Errorf("Server error = %v, want partial-decode", srvErr)
	}
	if cliRes == nil || cliRes.Success {
		t.Error("Client result must report ok=false")
	}
	if srvRes == nil || srvRes.Success {
		t.Error("Server result must report ok=false")
	}
}

func TestIBLTSyncParamMismatch(t *testing.T) {
	client := NewIBLTSync(16, 8)
	server := NewIBLTSync(32, 8)
	addAll(client, seq(1, 4))
	addAll(server, seq(3, 6))

	_, _, srvErr, cliErr := runPair(server, client)
	if cliErr == nil || srvErr == nil {
		t.Fatal("Expected setup failure for differing expected sizes")
	}
	if !models.IsKind(cliErr, models.ErrSyncSetup) {
		t.Errorf("Client error = %v, want sync-setup", cliErr)
	}
}

func TestIBLTSyncHalfRound(t *testing.T) {
	client := NewIBLTSyncHalfRound(16, 8)
	server := NewIBLTSyncHalfRound(16, 8)
	common := seq(100, 150)
	addAll(client, common)
	addAll(server, common)
	addAll(client, []uint64{1, 2})
	addAll(server, []uint64{900, 901})

	srvRes, cliRes, srvErr, cliErr := runPair(server, client)
	if cliErr != nil || srvErr != nil {
		t.Fatalf("Sync failed: client %v, server %v", cliErr, srvErr)
	}
	wantSet(t, "client self-minus-other", cliRes.SelfMinusOther, []uint64{1, 2})
	wantSet(t, "client other-minus-self", cliRes.OtherMinusSelf, []uint64{900, 901})
	if len(srvRes.SelfMinusOther) != 0 || len(srvRes.OtherMinusSelf) != 0 {
		t.Error("Half-round server must learn nothing")
	}
}

func TestIBLTMultisetSync(t *testing.T) {
	client := NewIBLTMultisetSync(16, 8)
	server := NewIBLTMultisetSync(16, 8)
	// Client holds 3 copies of 42, server 1; server holds 2 copies of 77.
	for i := 0; i < 3; i++ {
		client.AddElem(obj(42))
	}
	server.AddElem(obj(42))
	server.AddElem(obj(77))
	server.AddElem(obj(77))
	for _, v := range seq(200, 220) {
		client.AddElem(obj(v))
		server.AddElem(obj(v))
	}

	srvRes, cliRes, srvErr, cliErr := runPair(server, client)
	if cliErr != nil || srvErr != nil {
		t.Fatalf("Sync failed: client %v, server %v", cliErr, srvErr)
	}
	cs := toSet(cliRes.SelfMinusOther)
	if cs[42] != 2 || len(cs) != 1 {
		t.Errorf("Client self-minus-other = %v, want {42: 2}", cs)
	}
	co := toSet(cliRes.OtherMinusSelf)
	if co[77] != 2 || len(co) != 1 {
		t.Errorf("Client other-minus-self = %v, want {77: 2}", co)
	}
	ss := toSet(srvRes.SelfMinusOther)
	if ss[77] != 2 || len(ss) != 1 {
		t.Errorf("Server self-minus-other = %v, want {77: 2}", ss)
	}
}

func TestIBLTSetOfSets(t *testing.T) {
	client := NewIBLTSetOfSets(8, 4, 8)
	server := NewIBLTSetOfSets(8, 4, 8)

	mk := func(vals ...uint64) *models.DataObject {
		elems := make([]*models.DataObject, 0, len(vals))
		for _, v := range vals {
			elems = append(elems, obj(v))
		}
		return EncodeChildSet(4, elems)
	}

	shared1 := mk(1, 2, 3)
	shared2 := mk(10, 11)
	client.AddElem(shared1)
	client.AddElem(shared2)
	server.AddElem(shared1)
	server.AddElem(shared2)

	// One child differs by a single element; one child is client-only.
	client.AddElem(mk(20, 21, 22))
	server.AddElem(mk(20, 21, 23))
	client.AddElem(mk(90, 91))

	srvRes, cliRes, srvErr, cliErr := runPair(server, client)
	if cliErr != nil || srvErr != nil {
		t.Fatalf("Sync failed: client %v, server %v", cliErr, srvErr)
	}
	if !cliRes.Success {
		t.Fatal("Expected a clean two-level decode")
	}
	// Client-only children: its version of {20,21,22} and {90,91}.
	if len(cliRes.SelfMinusOther) != 2 {
		t.Errorf("Client self-minus-other has %d children, want 2", len(cliRes.SelfMinusOther))
	}
	// Server-only children: its version of {20,21,23}.
	if len(cliRes.OtherMinusSelf) != 1 {
		t.Fatalf("Client other-minus-self has %d children, want 1", len(cliRes.OtherMinusSelf))
	}
	remote, err := DecodeChildSet(4, cliRes.OtherMinusSelf[0])
	if err != nil {
		t.Fatalf("DecodeChildSet: %v", err)
	}
	wantSet(t, "remote child elements", remote, []uint64{20, 21, 23})
	_ = srvRes
}
