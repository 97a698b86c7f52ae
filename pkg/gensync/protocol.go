// Package gensync is the user-facing surface: session assembly through the
// Builder, the stable protocol identifiers, and the client/server entry
// points that drive a configured engine to completion.
package gensync

import (
	"fmt"

	"github.com/nislab/gensync/internal/syncs"
)

// SyncProtocol identifies a reconciliation family. The ordinals are stable
// across versions: parameter files store them on disk.
type SyncProtocol int

const (
	CPISync SyncProtocol = iota
	CPISync_OneLessRound
	CPISync_HalfRound
	ProbCPISync
	InteractiveCPISync
	OneWayCPISync
	FullSync
	IBLTSync
	OneWayIBLTSync
	IBLTSetOfSets
	IBLTSync_Multiset
	CuckooSync

	numProtocols
)

var protocolNames = [numProtocols]string{
	"CPISync",
	"CPISync_OneLessRound",
	"CPISync_HalfRound",
	"ProbCPISync",
	"InteractiveCPISync",
	"OneWayCPISync",
	"FullSync",
	"IBLTSync",
	"OneWayIBLTSync",
	"IBLTSetOfSets",
	"IBLTSync_Multiset",
	"CuckooSync",
}

func (p SyncProtocol) String() string {
	if p >= 0 && p < numProtocols {
		return protocolNames[p]
	}
	return fmt.Sprintf("SyncProtocol(%d)", int(p))
}

// ProtocolFromOrdinal maps a stored ordinal back to its protocol.
func ProtocolFromOrdinal(n int) (SyncProtocol, error) {
	if n < 0 || n >= int(numProtocols) {
		return 0, fmt.Errorf("no sync protocol with ordinal %d", n)
	}
	return SyncProtocol(n), nil
}

// IsCPIFamily reports whether the protocol takes CPISync parameters.
func (p SyncProtocol) IsCPIFamily() bool {
	switch p {
	case CPISync, CPISync_OneLessRound, CPISync_HalfRound, ProbCPISync,
		InteractiveCPISync, OneWayCPISync:
		return true
	}
	return false
}

// IsIBLTFamily reports whether the protocol takes IBLT parameters.
func (p SyncProtocol) IsIBLTFamily() bool {
	switch p {
	case IBLTSync, OneWayIBLTSync, IBLTSetOfSets, IBLTSync_Multiset:
		return true
	}
	return false
}

// Re-exported parameter sum type; engines return these from Describe and
// parameter files carry them.
type (
	Params         = syncs.Params
	CPISyncParams  = syncs.CPISyncParams
	IBLTParams     = syncs.IBLTParams
	CuckooParams   = syncs.CuckooParams
	FullSyncParams = syncs.FullSyncParams
)

// SyncResult is re-exported for callers reading session outcomes.
type SyncResult = syncs.SyncResult
