// Package zk implements the subset of the ZKTeco terminal protocol the
// bridge consumes: session open/close, scanner enable/disable, bulk reads
// of enrolled users and the stored attendance log, and the realtime event
// feed. It satisfies the interfaces in internal/domain/device.
package zk

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/smartstock-pro/zkbridge-go/internal/domain/device"
)

// Dialer opens TCP sessions to ZKTeco-compatible terminals.
type Dialer struct {
	Timeout  time.Duration
	Location *time.Location
}

func NewDialer(timeout time.Duration, loc *time.Location) *Dialer {
	if loc == nil {
		loc = time.Local
	}
	return &Dialer{Timeout: timeout, Location: loc}
}

// Dial implements device.Dialer.
func (d *Dialer) Dial(ctx context.Context, addr string, port int) (device.Session, error) {
	netDialer := net.Dialer{Timeout: d.Timeout}
	conn, err := netDialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("dial %s:%d: %w", addr, port, err)
	}

	s := &session{
		conn:    conn,
		timeout: d.Timeout,
		loc:     d.Location,
	}

	reply, err := s.roundTrip(packet{command: cmdConnect})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect handshake: %w", err)
	}
	if reply.command != cmdAckOK {
		conn.Close()
		if reply.command == cmdAckUnauth {
			return nil, fmt.Errorf("terminal %s requires a comm key", addr)
		}
		return nil, fmt.Errorf("connect rejected: command %d", reply.command)
	}
	s.sessionID = reply.session

	return s, nil
}

type session struct {
	conn      net.Conn
	timeout   time.Duration
	loc       *time.Location
	sessionID uint16
	replyID   uint16

	mu   sync.Mutex // serializes command round trips
	emu  sync.Mutex
	serr error
}

func (s *session) setErr(err error) {
	s.emu.Lock()
	if s.serr == nil {
		s.serr = err
	}
	s.emu.Unlock()
}

// Err implements device.Session.
func (s *session) Err() error {
	s.emu.Lock()
	defer s.emu.Unlock()
	return s.serr
}

// Close implements device.Session. The exit command is fired without
// waiting for an ack: a live-feed reader may still own the read side of the
// socket, and the close that follows unblocks it either way.
func (s *session) Close() error {
	s.mu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	exit := packet{command: cmdExit, session: s.sessionID, reply: s.nextReplyID()}
	_, _ = s.conn.Write(exit.marshal())
	s.mu.Unlock()
	return s.conn.Close()
}

// DisableScanning implements device.Session.
func (s *session) DisableScanning(ctx context.Context) error {
	return s.simpleCommand(ctx, cmdDisableDevice, []byte{0x00, 0x00})
}

// EnableScanning implements device.Session.
func (s *session) EnableScanning(ctx context.Context) error {
	return s.simpleCommand(ctx, cmdEnableDevice, nil)
}

func (s *session) simpleCommand(ctx context.Context, command uint16, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyDeadline(ctx)
	reply, err := s.roundTripLocked(packet{command: command, session: s.sessionID, data: data})
	if err != nil {
		s.setErr(err)
		return err
	}
	if reply.command != cmdAckOK {
		return fmt.Errorf("command %d rejected: reply %d", command, reply.command)
	}
	return nil
}

// EnrolledUsers implements device.Session.
func (s *session) EnrolledUsers(ctx context.Context) ([]device.EnrolledUser, error) {
	const fctUser = 5
	raw, err := s.bulkRead(ctx, cmdUserRead, []byte{fctUser})
	if err != nil {
		return nil, fmt.Errorf("read enrolled users: %w", err)
	}

	// 72-byte enrollment records: uid, role, password, name, card, group,
	// badge code.
	const recordSize = 72
	var users []device.EnrolledUser
	for off := 0; off+recordSize <= len(raw); off += recordSize {
		rec := raw[off : off+recordSize]
		name := cstring(rec[12:36])
		badge := cstring(rec[48:72])
		if badge == "" {
			// Oldest firmwares only carry the numeric uid.
			badge = strconv.Itoa(int(binary.LittleEndian.Uint16(rec[0:2])))
		}
		users = append(users, device.EnrolledUser{BadgeCode: badge, Name: name})
	}
	return users, nil
}

// StoredLog implements device.Session.
func (s *session) StoredLog(ctx context.Context) ([]device.ScanEvent, error) {
	raw, err := s.bulkRead(ctx, cmdAttLogRead, nil)
	if err != nil {
		return nil, fmt.Errorf("read stored log: %w", err)
	}

	// 40-byte log records: uid, badge code, verify status, packed timestamp.
	const recordSize = 40
	var events []device.ScanEvent
	for off := 0; off+recordSize <= len(raw); off += recordSize {
		rec := raw[off : off+recordSize]
		badge := cstring(rec[2:26])
		if badge == "" {
			badge = strconv.Itoa(int(binary.LittleEndian.Uint16(rec[0:2])))
		}
		ts := decodeTime(binary.LittleEndian.Uint32(rec[27:31]), s.loc)
		events = append(events, device.ScanEvent{BadgeCode: badge, Timestamp: ts})
	}
	return events, nil
}

// LiveEvents implements device.Session. After registration the terminal
// pushes one packet per scan; keep-alive and non-attendance packets surface
// as zero-value events so the consumer's loop stays responsive.
func (s *session) LiveEvents(ctx context.Context) (<-chan device.ScanEvent, error) {
	regData := make([]byte, 4)
	binary.LittleEndian.PutUint32(regData, efAttLog)

	s.mu.Lock()
	s.applyDeadline(ctx)
	reply, err := s.roundTripLocked(packet{command: cmdRegEvent, session: s.sessionID, data: regData})
	s.mu.Unlock()
	if err != nil {
		s.setErr(err)
		return nil, fmt.Errorf("register realtime events: %w", err)
	}
	if reply.command != cmdAckOK {
		return nil, fmt.Errorf("realtime registration rejected: reply %d", reply.command)
	}

	out := make(chan device.ScanEvent)
	go s.readLive(ctx, out)
	return out, nil
}

func (s *session) readLive(ctx context.Context, out chan<- device.ScanEvent) {
	defer close(out)

	for {
		// Long poll; the periodic timeout doubles as the keep-alive tick so
		// the supervisor can observe lock state between events.
		_ = s.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		p, err := s.readPacket()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				select {
				case out <- device.ScanEvent{}:
				case <-ctx.Done():
					s.setErr(ctx.Err())
					return
				}
				continue
			}
			s.setErr(err)
			return
		}

		if p.command != cmdRegEvent {
			continue
		}

		// Acknowledge so the terminal keeps streaming.
		_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		ack := packet{command: cmdAckOK, session: s.sessionID, reply: p.reply}
		if _, err := s.conn.Write(ack.marshal()); err != nil {
			s.setErr(err)
			return
		}

		event := s.decodeLiveEvent(p.data)
		select {
		case out <- event:
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		}
	}
}

func (s *session) decodeLiveEvent(data []byte) device.ScanEvent {
	// Realtime attendance payload: badge code (24 bytes, null padded),
	// verify flags, then a packed or ASCII timestamp depending on firmware.
	if len(data) < 28 {
		return device.ScanEvent{}
	}
	badge := cstring(data[0:24])
	ts := time.Now().In(s.loc)
	if len(data) >= 30 {
		if packed := binary.LittleEndian.Uint32(data[26:30]); packed != 0 {
			ts = decodeTime(packed, s.loc)
		}
	}
	return device.ScanEvent{BadgeCode: badge, Timestamp: ts}
}

// bulkRead performs a read command that may answer inline or via the
// prepare/data/free chunked sequence.
func (s *session) bulkRead(ctx context.Context, command uint16, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyDeadline(ctx)
	reply, err := s.roundTripLocked(packet{command: command, session: s.sessionID, data: data})
	if err != nil {
		s.setErr(err)
		return nil, err
	}

	switch reply.command {
	case cmdAckOK, cmdAckData:
		return reply.data, nil
	case cmdPrepareData:
		// fall through to chunked read below
	default:
		return nil, fmt.Errorf("bulk read rejected: reply %d", reply.command)
	}

	if len(reply.data) < 4 {
		return nil, fmt.Errorf("malformed prepare-data reply")
	}
	total := int(binary.LittleEndian.Uint32(reply.data[0:4]))

	buf := make([]byte, 0, total)
	for len(buf) < total {
		p, err := s.readPacket()
		if err != nil {
			s.setErr(err)
			return nil, err
		}
		switch p.command {
		case cmdData:
			buf = append(buf, p.data...)
		case cmdAckOK:
			// some firmwares terminate the stream early
			return buf, nil
		default:
			return nil, fmt.Errorf("unexpected packet %d during bulk read", p.command)
		}
	}

	// Release the device-side buffer.
	free := packet{command: cmdFreeData, session: s.sessionID, reply: s.nextReplyID()}
	if _, err := s.conn.Write(free.marshal()); err == nil {
		_, _ = s.readPacket() // ack, best effort
	}

	return buf, nil
}

func (s *session) applyDeadline(ctx context.Context) {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetDeadline(deadline)
}

func (s *session) nextReplyID() uint16 {
	s.replyID++
	return s.replyID
}

func (s *session) roundTrip(p packet) (packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetDeadline(time.Now().Add(s.timeout))
	return s.roundTripLocked(p)
}

func (s *session) roundTripLocked(p packet) (packet, error) {
	p.reply = s.nextReplyID()
	if _, err := s.conn.Write(p.marshal()); err != nil {
		return packet{}, fmt.Errorf("write command %d: %w", p.command, err)
	}
	return s.readPacket()
}

func (s *session) readPacket() (packet, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(s.conn, header); err != nil {
		return packet{}, err
	}
	if header[0] != tcpMagic[0] || header[1] != tcpMagic[1] || header[2] != tcpMagic[2] || header[3] != tcpMagic[3] {
		return packet{}, fmt.Errorf("bad frame header")
	}
	size := binary.LittleEndian.Uint32(header[4:])
	if size < 8 || size > 1<<20 {
		return packet{}, fmt.Errorf("implausible frame size %d", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(s.conn, payload); err != nil {
		return packet{}, err
	}
	return unmarshalPacket(payload)
}
