package base

import (
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

var (
	// ErrNotConnected is returned if no connection to any endpoint could be used
	ErrNotConnected = errors.New("not connected")

	// ErrTimeout is returned if no response arrived within the configured timeout
	ErrTimeout = errors.New("request timed out")

	// ErrConnectionLost is returned to every request still waiting on a connection that broke
	ErrConnectionLost = errors.New("connection lost")
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

type pendingResult struct {
	data []byte
	err  error
}

// link is one established net.Conn and the requests waiting for a response on it.
// A broken link is never reused, the endpoint gets a new link on the next request.
type link struct {
	conn    net.Conn
	writeMu sync.Mutex
	pending *xsync.MapOf[uint64, chan pendingResult]
}

// endpointConn multiplexes the requests of the transport over one link to an endpoint
type endpointConn struct {
	endpoint string
	parent   *clientTransport

	mu   sync.Mutex // guards link
	link *link
}

// clientTransport implements the framed client side shared by tcp and unix
type clientTransport struct {
	connector IClientConnector
	config    common.ClientConfig
	maxFrame  uint32

	connsMu     sync.RWMutex
	conns       []*endpointConn
	nextConn    atomic.Uint64
	nextRequest atomic.Uint64
	stopping    atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
		maxFrame:  common.DefaultMaxFrameSize,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return errors.New("no endpoints provided")
	}

	t.closeConnections()
	t.config = config
	t.maxFrame = common.MaxFrameSize(config.MaxFrameSize)
	t.stopping.Store(false)

	perEndpoint := max(config.ConnectionsPerEndpoint, 1)
	conns := make([]*endpointConn, 0, len(config.Endpoints)*perEndpoint)
	for _, endpoint := range config.Endpoints {
		for i := 0; i < perEndpoint; i++ {
			c := &endpointConn{endpoint: endpoint, parent: t}
			if _, err := c.current(); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, perEndpoint, err)
				continue
			}
			conns = append(conns, c)
		}
	}

	if len(conns) == 0 {
		return errors.Wrapf(ErrNotConnected, "no endpoint of %v reachable", config.Endpoints)
	}

	t.connsMu.Lock()
	t.conns = conns
	t.connsMu.Unlock()

	Logger.Infof("Connected to %d out of %d connections to %d endpoints using %s transport",
		len(conns), len(config.Endpoints)*perEndpoint, len(config.Endpoints), t.connector.GetName())
	return nil
}

// Send delivers req to the shard and waits for the response. Failed attempts are
// retried with exponential backoff on the next connection, but only as long as the
// request never reached a server: a scanner read or a put that arrived must not run twice.
func (t *clientTransport) Send(shardID uint64, req []byte) ([]byte, error) {
	if uint64(len(req)) > uint64(t.maxFrame) {
		return nil, errors.Wrapf(ErrFrameTooLarge, "request of %d bytes, limit is %d", len(req), t.maxFrame)
	}

	requestID := t.nextRequest.Add(1)
	timeout := time.Duration(t.config.TimeoutSecond) * time.Second
	attempts := max(t.config.RetryCount, 1)
	backoff := 50 * time.Millisecond

	var lastErr error
	for i := 0; i < attempts; i++ {
		c := t.next()
		if c == nil {
			return nil, ErrNotConnected
		}

		resp, sent, err := c.roundTrip(frameHeader{shardID: shardID, requestID: requestID}, req, timeout)
		if err == nil {
			return resp, nil
		}
		if sent {
			return nil, err
		}

		lastErr = err
		Logger.Debugf("Request attempt %d/%d to %s failed: %v", i+1, attempts, c.endpoint, err)

		if i < attempts-1 {
			// +-10% jitter
			time.Sleep(time.Duration(float64(backoff) * (0.9 + 0.2*rand.Float64())))
			backoff *= 2
		}
	}

	return nil, errors.Wrapf(lastErr, "request failed after %d attempts", attempts)
}

func (t *clientTransport) Close() error {
	t.stopping.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// next selects the connection for the next request (round robin)
func (t *clientTransport) next() *endpointConn {
	t.connsMu.RLock()
	defer t.connsMu.RUnlock()

	switch len(t.conns) {
	case 0:
		return nil
	case 1:
		return t.conns[0]
	default:
		return t.conns[t.nextConn.Add(1)%uint64(len(t.conns))]
	}
}

// closeConnections closes every link and fails the requests still waiting on them
func (t *clientTransport) closeConnections() {
	t.connsMu.Lock()
	conns := t.conns
	t.conns = nil
	t.connsMu.Unlock()

	for _, c := range conns {
		c.mu.Lock()
		l := c.link
		c.mu.Unlock()
		if l != nil {
			c.drop(l, net.ErrClosed)
		}
	}
}

// current returns the live link of the endpoint, dialing a new one if the last one broke
func (c *endpointConn) current() (*link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link != nil {
		return c.link, nil
	}
	if c.parent.stopping.Load() {
		return nil, ErrNotConnected
	}

	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", c.endpoint)
	}
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "upgrade connection to %s", c.endpoint)
	}

	l := &link{conn: conn, pending: xsync.NewMapOf[uint64, chan pendingResult]()}
	c.link = l
	go c.readResponses(l)
	return l, nil
}

// roundTrip writes one request frame and waits for its response.
// sent reports whether the frame was completely written.
func (c *endpointConn) roundTrip(h frameHeader, req []byte, timeout time.Duration) (resp []byte, sent bool, err error) {
	l, err := c.current()
	if err != nil {
		return nil, false, errors.Mark(err, ErrNotConnected)
	}

	respCh := make(chan pendingResult, 1)
	l.pending.Store(h.requestID, respCh)

	l.writeMu.Lock()
	if timeout > 0 {
		_ = l.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err = writeFrame(l.conn, h, req)
	l.writeMu.Unlock()

	if err != nil {
		l.pending.Delete(h.requestID)
		c.drop(l, err)
		return nil, false, errors.Wrapf(err, "write request to %s", c.endpoint)
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case result := <-respCh:
		return result.data, true, result.err
	case <-timer:
		l.pending.Delete(h.requestID)
		return nil, true, errors.Wrapf(ErrTimeout, "no response from %s within %s", c.endpoint, timeout)
	}
}

// readResponses hands every response frame of l to the request waiting for it.
// There is no read deadline: an idle link is fine, waiting requests time out on their own.
func (c *endpointConn) readResponses(l *link) {
	for {
		h, data, err := readFrame(l.conn, nil, c.parent.maxFrame)
		if err != nil {
			if !c.parent.stopping.Load() && !errors.Is(err, net.ErrClosed) {
				Logger.Warningf("Connection to %s lost: %v", c.endpoint, err)
			}
			c.drop(l, err)
			return
		}

		if respCh, ok := l.pending.LoadAndDelete(h.requestID); ok {
			respCh <- pendingResult{data: data}
		} else {
			// the request already timed out
			Logger.Debugf("Dropping response %d for shard %d from %s", h.requestID, h.shardID, c.endpoint)
		}
	}
}

// drop closes a broken link and fails every request waiting on it. Safe to call more than once.
func (c *endpointConn) drop(l *link, cause error) {
	c.mu.Lock()
	if c.link == l {
		c.link = nil
	}
	c.mu.Unlock()
	_ = l.conn.Close()

	lost := errors.Mark(errors.Wrapf(cause, "connection to %s", c.endpoint), ErrConnectionLost)
	l.pending.Range(func(id uint64, _ chan pendingResult) bool {
		if respCh, ok := l.pending.LoadAndDelete(id); ok {
			respCh <- pendingResult{err: lost}
		}
		return true
	})
}
