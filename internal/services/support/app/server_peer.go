package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/supportdesk/internal/platform/timeouts"
	"github.com/louisbranch/supportdesk/internal/services/support/presence"
	"github.com/louisbranch/supportdesk/internal/services/support/routing"
)

var (
	errPeerClosed    = errors.New("peer connection closed")
	errPeerQueueFull = errors.New("peer send queue full")
)

// wsConn is the write side of a WebSocket connection.
type wsConn interface {
	io.WriteCloser
	SetWriteDeadline(time.Time) error
}

type outbound struct {
	frame wsFrame
	// closeAfter terminates the connection once earlier frames are written.
	closeAfter bool
}

// wsPeer owns one connection's outbound queue. Only writeLoop writes to conn.
type wsPeer struct {
	handle    presence.Handle
	conn      wsConn
	queue     chan outbound
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newWSPeer(handle presence.Handle, conn wsConn) *wsPeer {
	return &wsPeer{
		handle:  handle,
		conn:    conn,
		queue:   make(chan outbound, peerSendQueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// writeFrame queues frame without blocking.
func (p *wsPeer) writeFrame(frame wsFrame) error {
	return p.enqueue(outbound{frame: frame})
}

// closeAfterFlush closes the connection after already queued frames.
func (p *wsPeer) closeAfterFlush() {
	if err := p.enqueue(outbound{closeAfter: true}); err != nil {
		p.close()
	}
}

func (p *wsPeer) enqueue(item outbound) error {
	select {
	case <-p.done:
		return errPeerClosed
	default:
	}
	select {
	case p.queue <- item:
		return nil
	default:
		return errPeerQueueFull
	}
}

// writeLoop drains the queue until the peer closes. Writes are bounded by
// timeouts.FrameWrite.
func (p *wsPeer) writeLoop() {
	defer close(p.stopped)
	encoder := json.NewEncoder(p.conn)
	for {
		select {
		case <-p.done:
			return
		case item := <-p.queue:
			if item.closeAfter {
				p.close()
				return
			}
			_ = p.conn.SetWriteDeadline(time.Now().Add(timeouts.FrameWrite))
			if err := encoder.Encode(item.frame); err != nil {
				log.Printf("support: write %s to %s: %v", item.frame.Type, p.handle, err)
				p.close()
				return
			}
		}
	}
}

func (p *wsPeer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// wait blocks until writeLoop has returned.
func (p *wsPeer) wait() {
	<-p.stopped
}

func (p *wsPeer) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// peerTable maps live handles to peers and implements routing.Sender.
type peerTable struct {
	mu    sync.RWMutex
	peers map[presence.Handle]*wsPeer
}

func newPeerTable() *peerTable {
	return &peerTable{peers: make(map[presence.Handle]*wsPeer)}
}

func (t *peerTable) add(peer *wsPeer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[peer.handle] = peer
}

func (t *peerTable) remove(peer *wsPeer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.peers[peer.handle] == peer {
		delete(t.peers, peer.handle)
	}
}

func (t *peerTable) lookup(handle presence.Handle) *wsPeer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.peers[handle]
}

func (t *peerTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// Send queues event for handle. Unknown handles and full queues drop it.
func (t *peerTable) Send(handle presence.Handle, event routing.Event) {
	peer := t.lookup(handle)
	if peer == nil {
		log.Printf("support: %s to disconnected handle %s dropped", event.Type, handle)
		return
	}
	frame := wsFrame{Type: string(event.Type), Payload: mustJSON(event.Payload)}
	if err := peer.writeFrame(frame); err != nil {
		log.Printf("support: %s to %s dropped: %v", event.Type, handle, err)
	}
}

// Close terminates the connection for handle after its queued frames.
func (t *peerTable) Close(handle presence.Handle) {
	if peer := t.lookup(handle); peer != nil {
		peer.closeAfterFlush()
	}
}
