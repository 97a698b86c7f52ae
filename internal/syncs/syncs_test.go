package syncs

import (
	"sync"
	"testing"

	"github.com/nislab/gensync/internal/comm"
	"github.com/nislab/gensync/pkg/models"
)

func obj(v uint64) *models.DataObject {
	return models.NewDataObjectFromUint64(v)
}

func addAll(m SyncMethod, vals []uint64) {
	for _, v := range vals {
		m.AddElem(obj(v))
	}
}

// runPair drives a server and a client over an in-process pipe.
func runPair(server, client SyncMethod) (srvRes, cliRes *SyncResult, srvErr, cliErr error) {
	clientComm, serverComm := comm.NewPipePair()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		srvRes, srvErr = server.SyncServer(serverComm)
	}()
	cliRes, cliErr = client.SyncClient(clientComm)
	wg.Wait()
	return srvRes, cliRes, srvErr, cliErr
}

func toSet(list []*models.DataObject) map[uint64]int {
	out := make(map[uint64]int)
	for _, d := range list {
		out[d.ToInt().Uint64()]++
	}
	return out
}

func wantSet(t *testing.T, label string, got []*models.DataObject, want []uint64) {
	t.Helper()
	gs := toSet(got)
	if len(gs) != len(want) {
		t.Errorf("%s: got %d distinct elements %v, want %d", label, len(gs), gs, len(want))
		return
	}
	for _, w := range want {
		if gs[w] == 0 {
			t.Errorf("%s: missing element %d", label, w)
		}
	}
}

func seq(from, to uint64) []uint64 {
	out := make([]uint64, 0, to-from+1)
	for v := from; v <= to; v++ {
		out = append(out, v)
	}
	return out
}
