package syncs

import (
	"testing"

	"github.com/nislab/gensync/pkg/models"
)

func TestCPISyncTinyDiff(t *testing.T) {
	// A = {1..5}, B = {3..7}: A\B = {1,2}, B\A = {6,7}.
	client := NewInteractiveCPISync(4, 32, 33, 0, 0, false)
	server := NewInteractiveCPISync(4, 32, 33, 0, 0, false)
	addAll(client, []uint64{1, 2, 3, 4, 5})
	addAll(server, []uint64{3, 4, 5, 6, 7})

	srvRes, cliRes, srvErr, cliErr := runPair(server, client)
	if cliErr != nil || srvErr != nil {
		t.Fatalf("Sync failed: client %v, server %v", cliErr, srvErr)
	}
	if !cliRes.Success || !srvRes.Success {
		t.Fatal("Expected success on both sides")
	}
	wantSet(t, "client self-minus-other", cliRes.SelfMinusOther, []uint64{1, 2})
	wantSet(t, "client other-minus-self", cliRes.OtherMinusSelf, []uint64{6, 7})
	wantSet(t, "server self-minus-other", srvRes.SelfMinusOther, []uint64{6, 7})
	wantSet(t, "server other-minus-self", srvRes.OtherMinusSelf, []uint64{1, 2})
}

func TestCPISyncIdenticalSets(t *testing.T) {
	client := NewInteractiveCPISync(4, 32, 33, 0, 0, false)
	server := NewInteractiveCPISync(4, 32, 33, 0, 0, false)
	addAll(client, []uint64{10, 20, 30})
	addAll(server, []uint64{10, 20, 30})

	srvRes, cliRes, srvErr, cliErr := runPair(server, client)
	if cliErr != nil || srvErr != nil {
		t.Fatalf("Sync failed: client %v, server %v", cliErr, srvErr)
	}
	if len(cliRes.SelfMinusOther) != 0 || len(cliRes.OtherMinusSelf) != 0 {
		t.Errorf("Identical sets must reconcile to empty lists, got %v / %v",
			cliRes.SelfMinusOther, cliRes.OtherMinusSelf)
	}
	if len(srvRes.SelfMinusOther) != 0 || len(srvRes.OtherMinusSelf) != 0 {
		t.Errorf("Identical sets must reconcile to empty lists on the server too")
	}
}

func TestCPISyncOverflow(t *testing.T) {
	// Four differences under m_bar = 1: both sides must surface
	// sync-insufficient-bound with empty lists.
	client := NewInteractiveCPISync(1, 32, 33, 0, 0, false)
	server := NewInteractiveCPISync(1, 32, 33, 0, 0, false)
	addAll(client, []uint64{1, 2, 3, 4, 5})
	addAll(server, []uint64{3, 4, 5, 6, 7})

	srvRes, cliRes, srvErr, cliErr := runPair(server, client)
	if cliErr == nil || srvErr == nil {
		t.Fatal("Expected errors on both sides")
	}
	if !models.IsKind(cliErr, models.ErrSyncInsufficientBound) {
		t.Errorf("Client error = %v, want sync-insufficient-bound", cliErr)
	}
	if !models.IsKind(srvErr, models.ErrSyncInsufficientBound) {
		t.Errorf("Server error = %v, want sync-insufficient-bound", srvErr)
	}
	if cliRes == nil || cliRes.Success || len(cliRes.SelfMinusOther) != 0 || len(cliRes.OtherMinusSelf) != 0 {
		t.Errorf("Client result should be unsuccessful and empty, got %+v", cliRes)
	}
	if srvRes == nil || srvRes.Success {
		t.Errorf("Server result should be unsuccessful, got %+v", srvRes)
	}
}

func TestCPISyncHashedElements(t *testing.T) {
	client := NewInteractiveCPISync(4, 32, 33, 0, 0, true)
	server := NewInteractiveCPISync(4, 32, 33, 0, 0, true)
	addAll(client, []uint64{100, 200, 300})
	addAll(server, []uint64{200, 300, 400, 500})

	srvRes, cliRes, srvErr, cliErr := runPair(server, client)
	if cliErr != nil || srvErr != nil {
		t.Fatalf("Sync failed: client %v, server %v", cliErr, srvErr)
	}
	wantSet(t, "client self-minus-other", cliRes.SelfMinusOther, []uint64{100})
	wantSet(t, "client other-minus-self", cliRes.OtherMinusSelf, []uint64{400, 500})
	wantSet(t, "server self-minus-other", srvRes.SelfMinusOther, []uint64{400, 500})
	wantSet(t, "server other-minus-self", srvRes.OtherMinusSelf, []uint64{100})
}

func TestProbCPISyncDoubling(t *testing.T) {
	// |A delta B| = 8 starting from a bound of 1: at least three
	// doublings before the run fits.
	client := NewProbCPISync(1, 32, 40, false)
	server := NewProbCPISync(1, 32, 40, false)
	addAll(client, seq(1, 10))  // {1..10}
	addAll(server, seq(5, 14))  // {5..14}: diff = {1..4} + {11..14}

	srvRes, cliRes, srvErr, cliErr := runPair(server, client)
	if cliErr != nil || srvErr != nil {
		t.Fatalf("Sync failed: client %v, server %v", cliErr, srvErr)
	}
	if !cliRes.Success || !srvRes.Success {
		t.Fatal("Expected success after doubling")
	}
	wantSet(t, "client self-minus-other", cliRes.SelfMinusOther, []uint64{1, 2, 3, 4})
	wantSet(t, "client other-minus-self", cliRes.OtherMinusSelf, []uint64{11, 12, 13, 14})
	if d := client.Stats().Counter(CounterDoublings); d < 3 {
		t.Errorf("Client recorded %d doublings, want >= 3", d)
	}
	if d := server.Stats().Counter(CounterDoublings); d < 3 {
		t.Errorf("Server recorded %d doublings, want >= 3", d)
	}
}

func TestCPISyncModulusMismatch(t *testing.T) {
	// Different bit-widths derive different field primes: setup must
	// fail before any element is exchanged.
	client := NewInteractiveCPISync(4, 32, 33, 0, 0, false)
	server := NewInteractiveCPISync(4, 16, 33, 0, 0, false)
	addAll(client, []uint64{1, 2})
	addAll(server, []uint64{1, 3})

	_, _, srvErr, cliErr := runPair(server, client)
	if cliErr == nil || srvErr == nil {
		t.Fatal("Expected setup failure on both sides")
	}
	if !models.IsKind(cliErr, models.ErrSyncSetup) {
		t.Errorf("Client error = %v, want sync-setup", cliErr)
	}
	if !models.IsKind(srvErr, models.ErrSyncSetup) {
		t.Errorf("Server error = %v, want sync-setup", srvErr)
	}
}

func TestCPISyncHalfRound(t *testing.T) {
	client := NewCPISyncHalfRound(4, 32, 33)
	server := NewCPISyncHalfRound(4, 32, 33)
	addAll(client, []uint64{1, 2, 3})
	addAll(server, []uint64{2, 3, 4})

	srvRes, cliRes, srvErr, cliErr := runPair(server, client)
	if cliErr != nil || srvErr != nil {
		t.Fatalf("Sync failed: client %v, server %v", cliErr, srvErr)
	}
	wantSet(t, "client self-minus-other", cliRes.SelfMinusOther, []uint64{1})
	wantSet(t, "client other-minus-self", cliRes.OtherMinusSelf, []uint64{4})
	wantSet(t, "server self-minus-other", srvRes.SelfMinusOther, []uint64{4})
	wantSet(t, "server other-minus-self", srvRes.OtherMinusSelf, []uint64{1})
}

func TestOneWayCPISync(t *testing.T) {
	client := NewOneWayCPISync(4, 32, 33)
	server := NewOneWayCPISync(4, 32, 33)
	addAll(client, []uint64{1, 2, 3})
	addAll(server, []uint64{2, 3, 4})

	srvRes, cliRes, srvErr, cliErr := runPair(server, client)
	if cliErr != nil || srvErr != nil {
		t.Fatalf("Sync failed: client %v, server %v", cliErr, srvErr)
	}
	wantSet(t, "client self-minus-other", cliRes.SelfMinusOther, []uint64{1})
	wantSet(t, "client other-minus-self", cliRes.OtherMinusSelf, []uint64{4})
	if len(srvRes.SelfMinusOther) != 0 || len(srvRes.OtherMinusSelf) != 0 {
		t.Error("One-way server must learn nothing")
	}
}

func TestCPISyncXmitEqualsPeerRecv(t *testing.T) {
	client := NewInteractiveCPISync(4, 32, 33, 0, 0, false)
	server := NewInteractiveCPISync(4, 32, 33, 0, 0, false)
	addAll(client, []uint64{1, 2, 3, 4, 5})
	addAll(server, []uint64{3, 4, 5, 6, 7})

	_, _, srvErr, cliErr := runPair(server, client)
	if cliErr != nil || srvErr != nil {
		t.Fatalf("Sync failed: client %v, server %v", cliErr, srvErr)
	}
	if client.Stats().Xmit() != server.Stats().Recv() {
		t.Errorf("Client XMIT %d != server RECV %d",
			client.Stats().Xmit(), server.Stats().Recv())
	}
	if server.Stats().Xmit() != client.Stats().Recv() {
		t.Errorf("Server XMIT %d != client RECV %d",
			server.Stats().Xmit(), client.Stats().Recv())
	}
}

func TestCPISyncDelElem(t *testing.T) {
	client := NewInteractiveCPISync(4, 32, 33, 0, 0, false)
	server := NewInteractiveCPISync(4, 32, 33, 0, 0, false)
	addAll(client, []uint64{1, 2, 3, 9})
	if ok, err := client.DelElem(obj(9)); err != nil || !ok {
		t.Fatalf("DelElem: ok=%t err=%v", ok, err)
	}
	addAll(server, []uint64{2, 3, 4})

	srvRes, cliRes, srvErr, cliErr := runPair(server, client)
	if cliErr != nil || srvErr != nil {
		t.Fatalf("Sync failed: client %v, server %v", cliErr, srvErr)
	}
	wantSet(t, "client self-minus-other", cliRes.SelfMinusOther, []uint64{1})
	wantSet(t, "client other-minus-self", cliRes.OtherMinusSelf, []uint64{4})
	_ = srvRes
}

func TestStatsReentryPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Nested timer buckets must panic")
		}
	}()
	s := NewSyncStats()
	s.TimerStart(CompTime)
	s.TimerStart(CommTime)
}
