package zk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Command words of the ZKTeco binary protocol (TCP framing).
const (
	cmdConnect       = 1000
	cmdExit          = 1001
	cmdEnableDevice  = 1002
	cmdDisableDevice = 1003
	cmdAckOK         = 2000
	cmdAckError      = 2001
	cmdAckData       = 2002
	cmdAckUnauth     = 1005
	cmdPrepareData   = 1500
	cmdData          = 1501
	cmdFreeData      = 1502
	cmdUserRead      = 9  // CMD_USERTEMP_RRQ
	cmdAttLogRead    = 13 // CMD_ATTLOG_RRQ
	cmdRegEvent      = 500

	efAttLog = 1 // realtime event mask: attendance log
)

// TCP transport header magic.
var tcpMagic = []byte{0x50, 0x50, 0x82, 0x7d}

type packet struct {
	command uint16
	session uint16
	reply   uint16
	data    []byte
}

// checksum is the ones-complement 16-bit word sum the terminals expect,
// computed with the checksum field itself zeroed.
func checksum(buf []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(buf); i += 2 {
		sum += uint32(binary.LittleEndian.Uint16(buf[i:]))
	}
	if len(buf)%2 == 1 {
		sum += uint32(buf[len(buf)-1])
	}
	for sum > 0xffff {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(^sum) & 0xffff
}

func (p packet) marshal() []byte {
	payload := make([]byte, 8+len(p.data))
	binary.LittleEndian.PutUint16(payload[0:], p.command)
	// checksum at [2:4] stays zero while summing
	binary.LittleEndian.PutUint16(payload[4:], p.session)
	binary.LittleEndian.PutUint16(payload[6:], p.reply)
	copy(payload[8:], p.data)
	binary.LittleEndian.PutUint16(payload[2:], checksum(payload))

	frame := make([]byte, 8+len(payload))
	copy(frame, tcpMagic)
	binary.LittleEndian.PutUint32(frame[4:], uint32(len(payload)))
	copy(frame[8:], payload)
	return frame
}

func unmarshalPacket(payload []byte) (packet, error) {
	if len(payload) < 8 {
		return packet{}, fmt.Errorf("short packet: %d bytes", len(payload))
	}
	return packet{
		command: binary.LittleEndian.Uint16(payload[0:]),
		session: binary.LittleEndian.Uint16(payload[4:]),
		reply:   binary.LittleEndian.Uint16(payload[6:]),
		data:    payload[8:],
	}, nil
}

// decodeTime unpacks the terminal's packed timestamp encoding.
func decodeTime(v uint32, loc *time.Location) time.Time {
	second := int(v % 60)
	v /= 60
	minute := int(v % 60)
	v /= 60
	hour := int(v % 24)
	v /= 24
	day := int(v%31) + 1
	v /= 31
	month := time.Month(v%12) + 1
	v /= 12
	year := int(v) + 2000
	return time.Date(year, month, day, hour, minute, second, 0, loc)
}

// cstring trims a fixed-width, null-padded terminal string field.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}
