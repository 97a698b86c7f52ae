package comm

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsPath is the endpoint both roles agree on.
const wsPath = "/gensync"

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // peer identity is not an HTTP-origin concern here
	},
}

// WebSocketTransport carries a session over a single websocket connection.
// Binary messages are re-framed into the ordered byte stream the codec
// expects.
type WebSocketTransport struct {
	Host string
	Port int
}

func NewWebSocket(host string, port int) *WebSocketTransport {
	if port == 0 {
		port = DefaultPort
	}
	return &WebSocketTransport{Host: host, Port: port}
}

func (t *WebSocketTransport) Name() string { return "websocket" }

func (t *WebSocketTransport) Dial() (Channel, error) {
	host := t.Host
	if host == "" {
		host = "localhost"
	}
	url := fmt.Sprintf("ws://%s:%d%s", host, t.Port, wsPath)
	deadline := time.Now().Add(dialRetryBudget)
	for {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			return newWSChannel(conn), nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("websocket dial %s: %v", url, err)
		}
		time.Sleep(dialRetryInterval)
	}
}

// Accept serves the upgrade endpoint until one peer connects, then shuts
// the listener down; the session owns the connection from there.
func (t *WebSocketTransport) Accept() (Channel, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", t.Port))
	if err != nil {
		return nil, fmt.Errorf("websocket listen :%d: %v", t.Port, err)
	}

	connCh := make(chan *websocket.Conn, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		select {
		case connCh <- conn:
		default:
			conn.Close() // a session takes exactly one peer
		}
	})
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)

	conn := <-connCh
	_ = ln.Close()
	return newWSChannel(conn), nil
}

// wsChannel adapts a message-oriented websocket connection to the stream
// Channel contract.
type wsChannel struct {
	conn *websocket.Conn
	cur  io.Reader
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{conn: conn}
}

func (w *wsChannel) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsChannel) Read(p []byte) (int, error) {
	for {
		if w.cur == nil {
			_, r, err := w.conn.NextReader()
			if err != nil {
				return 0, err
			}
			w.cur = r
		}
		n, err := w.cur.Read(p)
		if err == io.EOF {
			w.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (w *wsChannel) Close() error {
	return w.conn.Close()
}

func (w *wsChannel) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}
