package comm

import "net"

// NewPipePair returns two connected Communicants backed by an in-process
// duplex pipe. Both-mode benchmark runs and the protocol tests use this so
// a client and a server can reconcile inside one process.
func NewPipePair() (client, server *Communicant) {
	a, b := net.Pipe()
	return NewConnected(a), NewConnected(b)
}
