// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

/*
Packet layout, big endian:

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |     Value     |         Values          |
|      (uint32)     |   (int64, unix ns)    |     Count     |      (N * float32)      |
|                   |                       |    (uint16)   |                         |
+-------------------+-----------------------+---------------+-------------------------+
*/

// HeaderSize is the byte length of the fixed packet header.
const HeaderSize = 4 + 8 + 2

// Packet is one decoded datagram.
type Packet struct {
	Sequence  uint32
	Timestamp int64
	Values    []float32
}

// Publisher packs value frames and sends them through a Sender. It reuses
// its buffers and is not safe for concurrent use.
type Publisher struct {
	sender      *Sender
	sequenceNum uint32
	f32Buffer   []float32
	packet      *bytes.Buffer
	now         func() time.Time
}

// NewPublisher wraps sender.
func NewPublisher(sender *Sender) (*Publisher, error) {
	if sender == nil {
		return nil, errors.New("UDP publisher: sender cannot be nil")
	}
	return &Publisher{
		sender: sender,
		packet: new(bytes.Buffer),
		now:    time.Now,
	}, nil
}

// PublishBytes sends values, scaled to [0, 1], as one packet.
func (p *Publisher) PublishBytes(values []byte) error {
	if cap(p.f32Buffer) < len(values) {
		p.f32Buffer = make([]float32, len(values))
	}
	p.f32Buffer = p.f32Buffer[:len(values)]
	for i, v := range values {
		p.f32Buffer[i] = float32(v) / 255
	}

	p.sequenceNum++
	if err := Encode(p.packet, p.sequenceNum, p.now().UnixNano(), p.f32Buffer); err != nil {
		return err
	}
	return p.sender.Send(p.packet.Bytes())
}

// Sequence returns the number of the last packet built.
func (p *Publisher) Sequence() uint32 { return p.sequenceNum }

// Encode resets buf and writes one packet into it.
func Encode(buf *bytes.Buffer, seq uint32, timestamp int64, values []float32) error {
	if len(values) > math.MaxUint16 {
		return fmt.Errorf("too many values for one packet: %d", len(values))
	}
	buf.Reset()
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:], seq)
	binary.BigEndian.PutUint64(hdr[4:], uint64(timestamp))
	binary.BigEndian.PutUint16(hdr[12:], uint16(len(values)))
	buf.Write(hdr[:])

	var word [4]byte
	for _, v := range values {
		binary.BigEndian.PutUint32(word[:], math.Float32bits(v))
		buf.Write(word[:])
	}
	return nil
}

// Decode parses one packet.
func Decode(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(data))
	}
	n := int(binary.BigEndian.Uint16(data[12:]))
	if len(data) != HeaderSize+n*4 {
		return Packet{}, fmt.Errorf("packet length %d does not match %d values", len(data), n)
	}
	pkt := Packet{
		Sequence:  binary.BigEndian.Uint32(data[0:]),
		Timestamp: int64(binary.BigEndian.Uint64(data[4:])),
		Values:    make([]float32, n),
	}
	for i := range pkt.Values {
		pkt.Values[i] = math.Float32frombits(binary.BigEndian.Uint32(data[HeaderSize+i*4:]))
	}
	return pkt, nil
}
