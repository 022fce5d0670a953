package programmer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/hapcan/gw-server/internal/can"
	"github.com/hapcan/gw-server/internal/hapcan"
	"github.com/hapcan/gw-server/internal/hub"
	"github.com/hapcan/gw-server/internal/metrics"
)

// candidate wire lengths, shortest first: the client never sends a length
// prefix, so a frame is recognized by trying each length in turn and
// accepting the first one whose trailer and checksum validate (spec.md
// §4.6's three framing lengths: 7 system query, 13 ethernet-addressed, 15
// CAN-bound).
var candidateLengths = [...]int{7, 13, hapcan.SocketDataLen}

// readFrame peeks ahead in r to classify and consume exactly one frame,
// returning its raw bytes.
func readFrame(r *bufio.Reader) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != 0xAA {
			continue
		}
		if err := r.UnreadByte(); err != nil {
			return nil, err
		}
		break
	}
	for _, n := range candidateLengths {
		buf, err := r.Peek(n)
		if err == nil && buf[n-1] == 0xA5 && hapcan.VerifyTCPChecksum(buf) == nil {
			frame := make([]byte, n)
			copy(frame, buf)
			if _, err := r.Discard(n); err != nil {
				return nil, err
			}
			return frame, nil
		}
	}
	// No candidate validated; resync by dropping the leading 0xAA and
	// retrying so one bad byte does not wedge the connection forever.
	if _, err := r.Discard(1); err != nil {
		return nil, err
	}
	return nil, errBadFrame
}

var errBadFrame = errors.New("programmer: unrecognized frame, resyncing")

// Conn handles one TCP programmer connection: classify each inbound frame
// as a system query, an addressed query, or a CAN-bound frame, respond or
// forward accordingly, and relay live CAN bus traffic (via the shared
// hub) back to the client (spec.md §4.6's bidirectional multiplexing).
type Conn struct {
	id       string
	nc       net.Conn
	identity Identity
	inject   func(hapcan.Frame) error
	hub      *hub.Hub
	client   *hub.Client
	logger   *slog.Logger

	readDeadline time.Duration
}

// NewConn wires one accepted net.Conn into the programmer protocol,
// registering it with hb for live bus-traffic fanout.
func NewConn(id string, nc net.Conn, identity Identity, inject func(hapcan.Frame) error, hb *hub.Hub, logger *slog.Logger) *Conn {
	c := &Conn{
		id:           id,
		nc:           nc,
		identity:     identity,
		inject:       inject,
		hub:          hb,
		logger:       logger.With("conn_id", id),
		readDeadline: 60 * time.Second,
	}
	if hb != nil {
		c.client = &hub.Client{Out: make(chan can.Frame, 256), Closed: make(chan struct{})}
		hb.Add(c.client)
	}
	return c
}

// Serve runs the read and write loops until the connection closes or ctxDone fires.
func (c *Conn) Serve(ctxDone <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop(ctxDone)
	}()
	c.readLoop(ctxDone)
	<-done
}

func (c *Conn) readLoop(ctxDone <-chan struct{}) {
	defer c.close()
	r := bufio.NewReaderSize(c.nc, 256)
	for {
		_ = c.nc.SetReadDeadline(time.Now().Add(c.readDeadline))
		frame, err := readFrame(r)
		if err != nil {
			if errors.Is(err, errBadFrame) {
				metrics.IncMalformed()
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				select {
				case <-ctxDone:
					return
				default:
					continue
				}
			}
			c.logger.Warn("read_error", "error", err)
			return
		}
		if err := c.dispatch(frame); err != nil {
			c.logger.Warn("dispatch_error", "error", err, "len", len(frame))
			metrics.IncMalformed()
		}
		select {
		case <-ctxDone:
			return
		default:
		}
	}
}

func (c *Conn) dispatch(frame []byte) error {
	switch len(frame) {
	case 7:
		opcode, _, err := decodeSystemQuery(frame)
		if err != nil {
			return err
		}
		d, err := c.identity.HandleSystemQuery(opcode)
		if err != nil {
			return err
		}
		for _, resp := range d.SystemResponses {
			if _, err := c.nc.Write(resp[:]); err != nil {
				return fmt.Errorf("programmer: write response: %w", err)
			}
		}
		return nil
	case 13:
		opcode, _, _, err := decodeShortFrame(frame)
		if err != nil {
			return err
		}
		d, err := c.identity.HandleAddressedQuery(opcode)
		if err != nil {
			return err
		}
		if d.AddressedResp != nil {
			if _, err := c.nc.Write(d.AddressedResp[:]); err != nil {
				return fmt.Errorf("programmer: write addressed response: %w", err)
			}
		}
		return nil
	case hapcan.SocketDataLen:
		f, err := hapcan.DecodeTCP(frame)
		if err != nil {
			return err
		}
		if c.inject != nil {
			return c.inject(f)
		}
		return nil
	default:
		return fmt.Errorf("programmer: unexpected frame length %d", len(frame))
	}
}

// writeLoop relays live CAN bus traffic from the hub to this client as
// 15-byte TCP programmer frames, matching the vendor tool's "observe bus
// traffic" behavior (spec.md §4.6).
func (c *Conn) writeLoop(ctxDone <-chan struct{}) {
	if c.client == nil {
		<-ctxDone
		return
	}
	for {
		select {
		case fr := <-c.client.Out:
			wire := hapcan.EncodeTCP(hapcan.FromCAN(fr))
			if _, err := c.nc.Write(wire[:]); err != nil {
				return
			}
		case <-c.client.Closed:
			return
		case <-ctxDone:
			return
		}
	}
}

func (c *Conn) close() {
	_ = c.nc.Close()
	if c.hub != nil && c.client != nil {
		c.hub.Remove(c.client)
	}
}
