// Package journal is the append-only command journal: every accepted
// place and cancel command is framed, checksummed and appended before the
// book mutates, and replayed at boot to rebuild book state.
package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"

	"github.com/google/uuid"
)

type RecordType uint8

const (
	RecordPlace RecordType = iota
	RecordCancel
)

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}

// PlaceCommand is the journaled form of an admitted order. OrderID is the
// id the book assigned and Fills the pairings the match produced, so
// replay reproduces identical ids and identical outcomes even where the
// original run skipped a candidate pairing.
type PlaceCommand struct {
	PoolID     string
	OrderID    uint64
	Owner      uuid.UUID
	Side       uint8
	Type       uint8
	TIF        uint8
	Price      int64
	Quantity   int64
	Expiry     int64
	AutoBorrow bool
	AutoRepay  bool
	Fills      []FillRecord
}

// FillRecord is one journaled maker pairing of a place command.
type FillRecord struct {
	MakerOrder uint64
	Quantity   int64
}

// CancelCommand is the journaled form of an executed cancellation.
type CancelCommand struct {
	PoolID  string
	OrderID uint64
}

var errShortPayload = errors.New("journal: short payload")

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Encode frames a PlaceCommand as
// [pool len:2][pool][order id:8][owner:16][side:1][type:1][tif:1][flags:1]
// [price:8][qty:8][expiry:8][fill count:2]([maker:8][qty:8])*.
func (c PlaceCommand) Encode() []byte {
	var buf bytes.Buffer
	pool := []byte(c.PoolID)
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(pool)))
	buf.Write(pool)
	_ = binary.Write(&buf, binary.BigEndian, c.OrderID)
	buf.Write(c.Owner[:])
	buf.WriteByte(c.Side)
	buf.WriteByte(c.Type)
	buf.WriteByte(c.TIF)
	buf.WriteByte(boolByte(c.AutoBorrow) | boolByte(c.AutoRepay)<<1)
	_ = binary.Write(&buf, binary.BigEndian, c.Price)
	_ = binary.Write(&buf, binary.BigEndian, c.Quantity)
	_ = binary.Write(&buf, binary.BigEndian, c.Expiry)
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(c.Fills)))
	for _, f := range c.Fills {
		_ = binary.Write(&buf, binary.BigEndian, f.MakerOrder)
		_ = binary.Write(&buf, binary.BigEndian, f.Quantity)
	}
	return buf.Bytes()
}

func DecodePlace(b []byte) (PlaceCommand, error) {
	var c PlaceCommand
	if len(b) < 2 {
		return c, errShortPayload
	}
	n := int(binary.BigEndian.Uint16(b[:2]))
	if len(b) < 2+n+8+16+4+24+2 {
		return c, errShortPayload
	}
	b = b[2:]
	c.PoolID = string(b[:n])
	b = b[n:]
	c.OrderID = binary.BigEndian.Uint64(b[:8])
	b = b[8:]
	copy(c.Owner[:], b[:16])
	b = b[16:]
	c.Side = b[0]
	c.Type = b[1]
	c.TIF = b[2]
	c.AutoBorrow = b[3]&1 != 0
	c.AutoRepay = b[3]&2 != 0
	b = b[4:]
	c.Price = int64(binary.BigEndian.Uint64(b[:8]))
	c.Quantity = int64(binary.BigEndian.Uint64(b[8:16]))
	c.Expiry = int64(binary.BigEndian.Uint64(b[16:24]))
	b = b[24:]
	fills := int(binary.BigEndian.Uint16(b[:2]))
	b = b[2:]
	if len(b) != fills*16 {
		return c, errShortPayload
	}
	for i := 0; i < fills; i++ {
		c.Fills = append(c.Fills, FillRecord{
			MakerOrder: binary.BigEndian.Uint64(b[:8]),
			Quantity:   int64(binary.BigEndian.Uint64(b[8:16])),
		})
		b = b[16:]
	}
	return c, nil
}

// Encode frames a CancelCommand as [pool len:2][pool][order id:8].
func (c CancelCommand) Encode() []byte {
	var buf bytes.Buffer
	pool := []byte(c.PoolID)
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(pool)))
	buf.Write(pool)
	_ = binary.Write(&buf, binary.BigEndian, c.OrderID)
	return buf.Bytes()
}

func DecodeCancel(b []byte) (CancelCommand, error) {
	var c CancelCommand
	if len(b) < 2 {
		return c, errShortPayload
	}
	n := int(binary.BigEndian.Uint16(b[:2]))
	if len(b) != 2+n+8 {
		return c, errShortPayload
	}
	c.PoolID = string(b[2 : 2+n])
	c.OrderID = binary.BigEndian.Uint64(b[2+n:])
	return c, nil
}
