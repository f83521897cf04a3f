// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	applog "keydetect/internal/log"
	"keydetect/internal/transport"
)

// PacketMagic opens every key-state datagram: "KDKY" in ASCII.
const PacketMagic uint32 = 0x4B444B59

// PacketSize is the fixed datagram length in bytes.
const PacketSize = 4 + 4 + 8 + 1 + 8

/*
Key-state packet layout (BigEndian):

	| Field           | Type    | Size | Description                      |
	|-----------------|---------|------|----------------------------------|
	| Magic           | uint32  | 4    | PacketMagic, "KDKY"              |
	| Sequence Number | uint32  | 4    | Increments per packet            |
	| Timestamp       | int64   | 8    | Unix nanoseconds at observation  |
	| Key ID          | uint8   | 1    | 0-23, 24 for the no-key sentinel |
	| Window          | float64 | 8    | Analysis window in seconds       |
*/

// Publisher packs key updates into the fixed binary format and sends them
// through a Sender. It implements transport.Transport, so a Monitor hands
// it only genuine key changes.
type Publisher struct {
	sender *Sender

	mu           sync.Mutex // Serializes packet building and the sequence number.
	sequenceNum  uint32
	packetBuffer *bytes.Buffer // Reused across Send calls.
}

// NewPublisher dials the target address and returns a ready publisher.
func NewPublisher(targetAddress string) (*Publisher, error) {
	sender, err := NewSender(targetAddress)
	if err != nil {
		return nil, err
	}
	applog.Infof("udp: publishing key changes to %s", targetAddress)
	return &Publisher{
		sender:       sender,
		packetBuffer: bytes.NewBuffer(make([]byte, 0, PacketSize)),
	}, nil
}

// Send packs and transmits one update.
func (p *Publisher) Send(update transport.KeyUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sequenceNum++
	packet, err := p.pack(update)
	if err != nil {
		return fmt.Errorf("failed to pack key packet: %w", err)
	}
	if err := p.sender.Send(packet); err != nil {
		return err
	}
	applog.Debugf("udp: sent packet %d (%d bytes, key %q)", p.sequenceNum, len(packet), update.Key)
	return nil
}

// pack writes the packet into the reusable buffer and returns its bytes,
// valid until the next Send. Callers hold p.mu.
func (p *Publisher) pack(update transport.KeyUpdate) ([]byte, error) {
	p.packetBuffer.Reset()

	err := binary.Write(p.packetBuffer, binary.BigEndian, PacketMagic)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, update.Timestamp)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint8(update.KeyID))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, update.Window)
	}
	if err != nil {
		return nil, err
	}
	return p.packetBuffer.Bytes(), nil
}

// Close closes the underlying sender.
func (p *Publisher) Close() error {
	return p.sender.Close()
}

var _ transport.Transport = (*Publisher)(nil)
