// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/juju/errors"
)

const (
	// SlotCount is the number of participant slots in a game.
	SlotCount = 250

	// StatusBlockLength is the size of the status block: status codes,
	// submission codes and connected flags, one array each.
	StatusBlockLength = 3 * SlotCount

	blockLength = 6

	// fixedLength is the record length less the game name and its
	// terminator.
	fixedLength = blockLength + blockLength + 4 + StatusBlockLength + 1 + 4 + 4 + 1
)

// RawRecord is the status record exactly as laid out on the wire.
type RawRecord struct {
	Lead      [blockLength]byte
	Name      string
	Settings  [blockLength]byte
	Countdown int32

	// Status holds the status codes, then the submission codes, then the
	// connected flags.
	Status [StatusBlockLength]byte

	Reserved byte
	Era      uint32
	Turn     uint32
	Flag     byte
}

// Length is the number of bytes the record occupies on the wire.
func (r RawRecord) Length() int {
	return fixedLength + len(r.Name) + 1
}

// StatusCode returns the status code of slot i.
func (r RawRecord) StatusCode(i int) uint8 {
	return r.Status[i]
}

// SubmissionCode returns the submission code of slot i.
func (r RawRecord) SubmissionCode(i int) uint8 {
	return r.Status[i+SlotCount]
}

// Connected reports whether slot i has a client connected.
func (r RawRecord) Connected(i int) bool {
	return r.Status[i+2*SlotCount] != 0
}

// ParseRecord decodes an inflated payload. The payload must be exactly
// as long as the layout it describes.
func ParseRecord(payload []byte) (RawRecord, error) {
	var (
		rec RawRecord
		err error
	)
	cur := &cursor{buf: payload}

	if err = cur.readInto(rec.Lead[:], "lead block"); err != nil {
		return RawRecord{}, err
	}
	if rec.Name, err = cur.readCString("game name"); err != nil {
		return RawRecord{}, err
	}
	if err = cur.readInto(rec.Settings[:], "settings block"); err != nil {
		return RawRecord{}, err
	}
	countdown, err := cur.readUint32("countdown")
	if err != nil {
		return RawRecord{}, err
	}
	rec.Countdown = int32(countdown)
	if err = cur.readInto(rec.Status[:], "status block"); err != nil {
		return RawRecord{}, err
	}
	if rec.Reserved, err = cur.readByte("reserved"); err != nil {
		return RawRecord{}, err
	}
	if rec.Era, err = cur.readUint32("era"); err != nil {
		return RawRecord{}, err
	}
	if rec.Turn, err = cur.readUint32("turn"); err != nil {
		return RawRecord{}, err
	}
	if rec.Flag, err = cur.readByte("flag"); err != nil {
		return RawRecord{}, err
	}
	if rest := cur.remaining(); rest != 0 {
		return RawRecord{}, errors.Annotatef(ErrTrailingData, "%d bytes after record", rest)
	}
	return rec, nil
}

// Marshal lays the record out as it appears on the wire.
func (r RawRecord) Marshal() []byte {
	buf := make([]byte, 0, r.Length())
	buf = append(buf, r.Lead[:]...)
	buf = append(buf, r.Name...)
	buf = append(buf, 0)
	buf = append(buf, r.Settings[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Countdown))
	buf = append(buf, r.Status[:]...)
	buf = append(buf, r.Reserved)
	buf = binary.LittleEndian.AppendUint32(buf, r.Era)
	buf = binary.LittleEndian.AppendUint32(buf, r.Turn)
	return append(buf, r.Flag)
}

// cursor reads fields in order, checking each one fits.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}

func (c *cursor) take(n int, field string) ([]byte, error) {
	if c.remaining() < n {
		return nil, errors.Annotatef(ErrFrameTruncated,
			"reading %s: need %d bytes at offset %d, have %d", field, n, c.off, c.remaining())
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *cursor) readInto(dst []byte, field string) error {
	b, err := c.take(len(dst), field)
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

func (c *cursor) readByte(field string) (byte, error) {
	b, err := c.take(1, field)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) readUint32(field string) (uint32, error) {
	b, err := c.take(4, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) readCString(field string) (string, error) {
	end := bytes.IndexByte(c.buf[c.off:], 0)
	if end < 0 {
		return "", errors.Annotatef(ErrMalformedName, "reading %s at offset %d", field, c.off)
	}
	s := string(c.buf[c.off : c.off+end])
	c.off += end + 1
	return s, nil
}
