// Package comm implements the Communicant: a length-prefixed typed codec
// over an ordered reliable byte stream, with per-session byte counters and
// the connection lifecycle the engines drive. Transports are TCP sockets,
// websockets, and an in-process pipe for both-mode runs and tests.
package comm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/nislab/gensync/pkg/models"
)

// State tracks the connection lifecycle. Servers go Fresh -> Listening ->
// Connected -> Closed; clients go Fresh -> Connecting -> Connected -> Closed.
type State int

const (
	Fresh State = iota
	Listening
	Connecting
	Connected
	Closed
)

// Channel is the ordered byte stream a transport hands to the codec.
type Channel interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// Transport produces Channels for the two roles.
type Transport interface {
	Dial() (Channel, error)
	Accept() (Channel, error)
	Name() string
}

// Communicant exchanges typed values over one Channel and counts every byte
// at the call site. A Communicant's lifetime matches a session; the
// counters are monotone.
type Communicant struct {
	transport Transport
	ch        Channel
	state     State

	xmit uint64
	recv uint64

	recvTimeout time.Duration
}

// New wraps a transport; the channel is established by Connect or Listen.
func New(t Transport) *Communicant {
	return &Communicant{transport: t, state: Fresh}
}

// NewConnected wraps an already-established channel (the pipe transport and
// tests use this).
func NewConnected(ch Channel) *Communicant {
	return &Communicant{ch: ch, state: Connected}
}

// SetRecvTimeout installs an optional per-recv deadline. Zero disables it.
func (c *Communicant) SetRecvTimeout(d time.Duration) {
	c.recvTimeout = d
}

// Connect establishes the channel in the client role.
func (c *Communicant) Connect() error {
	if c.state == Connected {
		return nil
	}
	if c.state != Fresh {
		return models.NewSyncError(models.ErrSyncSetup, "connect from state %d", c.state)
	}
	c.state = Connecting
	ch, err := c.transport.Dial()
	if err != nil {
		c.state = Closed
		return models.WrapSyncError(models.ErrSyncSetup, err, "client connect")
	}
	c.ch = ch
	c.state = Connected
	return nil
}

// Listen establishes the channel in the server role, accepting one peer.
func (c *Communicant) Listen() error {
	if c.state == Connected {
		return nil
	}
	if c.state != Fresh {
		return models.NewSyncError(models.ErrSyncSetup, "listen from state %d", c.state)
	}
	c.state = Listening
	ch, err := c.transport.Accept()
	if err != nil {
		c.state = Closed
		return models.WrapSyncError(models.ErrSyncSetup, err, "server listen")
	}
	c.ch = ch
	c.state = Connected
	return nil
}

// Close tears the channel down. Safe to call repeatedly.
func (c *Communicant) Close() error {
	if c.state == Closed || c.ch == nil {
		c.state = Closed
		return nil
	}
	c.state = Closed
	return c.ch.Close()
}

// XmitBytes returns the total bytes transmitted this session.
func (c *Communicant) XmitBytes() uint64 { return c.xmit }

// RecvBytes returns the total bytes received this session.
func (c *Communicant) RecvBytes() uint64 { return c.recv }

func (c *Communicant) write(p []byte) error {
	if c.state != Connected {
		return models.NewSyncError(models.ErrChannelClosed, "send on unconnected channel")
	}
	n, err := c.ch.Write(p)
	c.xmit += uint64(n)
	if err != nil {
		return models.WrapSyncError(models.ErrChannelClosed, err, "send")
	}
	return nil
}

func (c *Communicant) readFull(p []byte) error {
	if c.state != Connected {
		return models.NewSyncError(models.ErrChannelClosed, "recv on unconnected channel")
	}
	if c.recvTimeout > 0 {
		_ = c.ch.SetReadDeadline(time.Now().Add(c.recvTimeout))
		defer c.ch.SetReadDeadline(time.Time{})
	}
	n, err := io.ReadFull(c.ch, p)
	c.recv += uint64(n)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() || errors.Is(err, os.ErrDeadlineExceeded) {
			return models.WrapSyncError(models.ErrTimeout, err, "recv deadline")
		}
		return models.WrapSyncError(models.ErrChannelClosed, err, "recv")
	}
	return nil
}

// SendByte writes one byte.
func (c *Communicant) SendByte(b byte) error {
	return c.write([]byte{b})
}

// RecvByte reads one byte.
func (c *Communicant) RecvByte() (byte, error) {
	var b [1]byte
	if err := c.readFull(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// SendUint32 writes a fixed-width big-endian uint32.
func (c *Communicant) SendUint32(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return c.write(b[:])
}

func (c *Communicant) RecvUint32() (uint32, error) {
	var b [4]byte
	if err := c.readFull(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// SendUint64 writes a fixed-width big-endian uint64.
func (c *Communicant) SendUint64(v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return c.write(b[:])
}

func (c *Communicant) RecvUint64() (uint64, error) {
	var b [8]byte
	if err := c.readFull(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// SendBytes writes a length-prefixed byte string.
func (c *Communicant) SendBytes(p []byte) error {
	if err := c.SendUint32(uint32(len(p))); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	return c.write(p)
}

func (c *Communicant) RecvBytesMsg() ([]byte, error) {
	n, err := c.RecvUint32()
	if err != nil {
		return nil, err
	}
	p := make([]byte, n)
	if n == 0 {
		return p, nil
	}
	if err := c.readFull(p); err != nil {
		return nil, err
	}
	return p, nil
}

// SendZZ writes a non-negative big integer: len:uint32 then len big-endian
// magnitude bytes. The sign prefix is reserved; this system only carries
// non-negative values.
func (c *Communicant) SendZZ(v *big.Int) error {
	if v.Sign() < 0 {
		return fmt.Errorf("comm: negative big integer on the wire")
	}
	return c.SendBytes(v.Bytes())
}

func (c *Communicant) RecvZZ() (*big.Int, error) {
	b, err := c.RecvBytesMsg()
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

// SendDataObject writes an element as the big integer encoding of its
// canonical integer view.
func (c *Communicant) SendDataObject(d *models.DataObject) error {
	return c.SendZZ(d.ToInt())
}

func (c *Communicant) RecvDataObject() (*models.DataObject, error) {
	v, err := c.RecvZZ()
	if err != nil {
		return nil, err
	}
	return models.NewDataObjectFromInt(v), nil
}

// SendDataObjectList writes count:uint32 then the element encodings.
func (c *Communicant) SendDataObjectList(list []*models.DataObject) error {
	if err := c.SendUint32(uint32(len(list))); err != nil {
		return err
	}
	for _, d := range list {
		if err := c.SendDataObject(d); err != nil {
			return err
		}
	}
	return nil
}

func (c *Communicant) RecvDataObjectList() ([]*models.DataObject, error) {
	n, err := c.RecvUint32()
	if err != nil {
		return nil, err
	}
	list := make([]*models.DataObject, 0, n)
	for i := uint32(0); i < n; i++ {
		d, err := c.RecvDataObject()
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, nil
}

// SendZZList writes count:uint32 then big integer encodings.
func (c *Communicant) SendZZList(list []*big.Int) error {
	if err := c.SendUint32(uint32(len(list))); err != nil {
		return err
	}
	for _, v := range list {
		if err := c.SendZZ(v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Communicant) RecvZZList() ([]*big.Int, error) {
	n, err := c.RecvUint32()
	if err != nil {
		return nil, err
	}
	list := make([]*big.Int, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := c.RecvZZ()
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, nil
}

// EstablishModSend runs the client half of the modulus handshake: write our
// modulus, read the peer's, abort on mismatch. The first action after
// Connected is always this exchange. With oneWay set no reply is read.
func (c *Communicant) EstablishModSend(p *big.Int, oneWay bool) error {
	if err := c.SendZZ(p); err != nil {
		return err
	}
	if oneWay {
		return nil
	}
	theirs, err := c.RecvZZ()
	if err != nil {
		return err
	}
	if theirs.Cmp(p) != 0 {
		return models.NewSyncError(models.ErrSyncSetup,
			"modulus mismatch: ours %v, theirs %v", p, theirs)
	}
	return nil
}

// EstablishModRecv runs the server half: read the peer's modulus, write our
// own, abort on mismatch.
func (c *Communicant) EstablishModRecv(p *big.Int, oneWay bool) error {
	theirs, err := c.RecvZZ()
	if err != nil {
		return err
	}
	if !oneWay {
		if err := c.SendZZ(p); err != nil {
			return err
		}
	}
	if theirs.Cmp(p) != 0 {
		return models.NewSyncError(models.ErrSyncSetup,
			"modulus mismatch: ours %v, theirs %v", p, theirs)
	}
	return nil
}
