package gensync

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nislab/gensync/internal/comm"
	"github.com/nislab/gensync/internal/syncs"
	"github.com/nislab/gensync/pkg/models"
)

// GenSync aggregates one or more sync agents and their channels. Elements
// added to the session fan out to every agent; a sync runs one agent's
// client or server role to completion over its channel.
type GenSync struct {
	ID string

	agents  []syncs.SyncMethod
	comms   []*comm.Communicant
	results []*syncs.SyncResult
}

func newGenSync(agents []syncs.SyncMethod, comms []*comm.Communicant) *GenSync {
	return &GenSync{
		ID:      uuid.NewString(),
		agents:  agents,
		comms:   comms,
		results: make([]*syncs.SyncResult, len(agents)),
	}
}

// NewPipePair returns two connected Communicants for in-process sessions;
// install them with Builder.SetCommunicant on the two peers.
func NewPipePair() (client, server *comm.Communicant) {
	return comm.NewPipePair()
}

// AddElem routes one element to every agent. It returns whether the
// element was newly accepted by all of them.
func (g *GenSync) AddElem(d *models.DataObject) bool {
	accepted := true
	for _, a := range g.agents {
		if !a.AddElem(d) {
			accepted = false
		}
	}
	return accepted
}

// DelElem removes an element from every agent; engines without deletion
// surface unsupported-op.
func (g *GenSync) DelElem(d *models.DataObject) (bool, error) {
	removed := true
	for _, a := range g.agents {
		ok, err := a.DelElem(d)
		if err != nil {
			return false, err
		}
		if !ok {
			removed = false
		}
	}
	return removed, nil
}

// Elements returns the first agent's view of the set in insertion order.
func (g *GenSync) Elements() []*models.DataObject {
	if len(g.agents) == 0 {
		return nil
	}
	return g.agents[0].Elements()
}

func (g *GenSync) commFor(agentIdx int) *comm.Communicant {
	if agentIdx < len(g.comms) {
		return g.comms[agentIdx]
	}
	return g.comms[0]
}

// ClientSyncBegin runs the chosen agent's client role to completion. The
// boolean is the decoder's belief that the difference lists are complete;
// callers must consult it together with the returned error.
func (g *GenSync) ClientSyncBegin(agentIdx int) (bool, error) {
	if agentIdx < 0 || agentIdx >= len(g.agents) {
		return false, fmt.Errorf("no sync agent at index %d", agentIdx)
	}
	res, err := g.agents[agentIdx].SyncClient(g.commFor(agentIdx))
	g.results[agentIdx] = res
	if res == nil {
		return false, err
	}
	return res.Success, err
}

// ServerSyncBegin runs the chosen agent's server role to completion.
func (g *GenSync) ServerSyncBegin(agentIdx int) (bool, error) {
	if agentIdx < 0 || agentIdx >= len(g.agents) {
		return false, fmt.Errorf("no sync agent at index %d", agentIdx)
	}
	res, err := g.agents[agentIdx].SyncServer(g.commFor(agentIdx))
	g.results[agentIdx] = res
	if res == nil {
		return false, err
	}
	return res.Success, err
}

// LastResult returns the difference lists of the agent's most recent sync,
// or nil when no sync has completed.
func (g *GenSync) LastResult(agentIdx int) *SyncResult {
	if agentIdx < 0 || agentIdx >= len(g.results) {
		return nil
	}
	return g.results[agentIdx]
}

// GetName names the agent's protocol.
func (g *GenSync) GetName(agentIdx int) string {
	if agentIdx < 0 || agentIdx >= len(g.agents) {
		return ""
	}
	return g.agents[agentIdx].Name()
}

// Describe returns the agent's parameter variant.
func (g *GenSync) Describe(agentIdx int) Params {
	if agentIdx < 0 || agentIdx >= len(g.agents) {
		return nil
	}
	return g.agents[agentIdx].Describe()
}

// PrintStats renders the agent's statistics block.
func (g *GenSync) PrintStats(agentIdx int) string {
	if agentIdx < 0 || agentIdx >= len(g.agents) {
		return ""
	}
	a := g.agents[agentIdx]
	return a.Stats().Render(a.Name(), a.Sketch())
}

// StatCounter reads a named stats counter off an agent (doublings, tree
// depth); the benchmark observers consume these.
func (g *GenSync) StatCounter(agentIdx int, name string) uint64 {
	if agentIdx < 0 || agentIdx >= len(g.agents) {
		return 0
	}
	return g.agents[agentIdx].Stats().Counter(name)
}

// XmitBytes reports bytes transmitted in the agent's last session.
func (g *GenSync) XmitBytes(agentIdx int) uint64 {
	if agentIdx < 0 || agentIdx >= len(g.agents) {
		return 0
	}
	return g.agents[agentIdx].Stats().Xmit()
}

// RecvBytes reports bytes received in the agent's last session.
func (g *GenSync) RecvBytes(agentIdx int) uint64 {
	if agentIdx < 0 || agentIdx >= len(g.agents) {
		return 0
	}
	return g.agents[agentIdx].Stats().Recv()
}
