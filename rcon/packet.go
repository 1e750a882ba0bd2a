package rcon

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Source RCON packet types. EXECCOMMAND and AUTH_RESPONSE share the value 2;
// direction disambiguates them.
const (
	packetTypeResponseValue int32 = 0
	packetTypeAuthResponse  int32 = 2
	packetTypeExecCommand   int32 = 2
	packetTypeAuth          int32 = 3
)

// authFailedID is the request id echoed back when authentication fails.
const authFailedID int32 = -1

// maxPacketSize bounds inbound packets; ARK responses stay well under this.
const maxPacketSize = 1 << 20

// packet is one Source RCON frame: little-endian int32 size, id, type,
// a NUL-terminated body and one trailing NUL.
type packet struct {
	ID   int32
	Type int32
	Body string
}

// writePacket frames and writes a packet.
func writePacket(w io.Writer, p packet) error {
	size := int32(4 + 4 + len(p.Body) + 2)
	buf := make([]byte, 4+size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.ID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(p.Type))
	copy(buf[12:], p.Body)
	// last two bytes stay zero: body terminator and packet terminator
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

// readPacket reads and unframes one packet.
func readPacket(r *bufio.Reader) (packet, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return packet{}, err
	}
	size := int32(binary.LittleEndian.Uint32(head[:]))
	if size < 10 || size > maxPacketSize {
		return packet{}, fmt.Errorf("invalid packet size %d", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return packet{}, err
	}
	p := packet{
		ID:   int32(binary.LittleEndian.Uint32(body[0:4])),
		Type: int32(binary.LittleEndian.Uint32(body[4:8])),
	}
	payload := body[8:]
	// strip the two trailing NULs
	for len(payload) > 0 && payload[len(payload)-1] == 0 {
		payload = payload[:len(payload)-1]
	}
	p.Body = string(payload)
	return p, nil
}
