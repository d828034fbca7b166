// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package wire implements the game server status protocol: the fixed
// request frames, response framing with optional zlib compression, and
// the fixed-offset status record carried in the response.
package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/juju/errors"
	"github.com/klauspost/compress/zlib"
)

const (
	// HeaderLength is the size of every frame header.
	HeaderLength = 6

	// PayloadOffset is where the record starts within a full response
	// buffer (header plus body). The four bytes in between hold the
	// uncompressed length, which we do not rely on.
	PayloadOffset = 10

	// MaxBodyLength bounds the body a header may declare.
	MaxBodyLength = 1 << 20

	// maxPayloadLength bounds an inflated payload.
	maxPayloadLength = 1 << 20

	magic           = 'f'
	plainMarker     = 'H'
	compressMarker  = 'J'
	lengthOffset    = 2
	lengthFieldSize = 4
)

var (
	queryFrame = []byte{'f', 'H', 0x07, 0x00, 0x00, 0x00, 0x3D, 0x1E, 0x02, 0x11, 'E', 0x05, 0x00}
	closeFrame = []byte{'f', 'H', 0x01, 0x00, 0x00, 0x00, 0x0B}
)

// QueryFrame returns the request asking a server for its game status.
func QueryFrame() []byte {
	return bytes.Clone(queryFrame)
}

// CloseFrame returns the request telling a server we are done.
func CloseFrame() []byte {
	return bytes.Clone(closeFrame)
}

// Frame is a single response read off the wire.
type Frame struct {
	header [HeaderLength]byte
	body   []byte
}

// ReadFrame reads one response frame: a header, then exactly as many
// body bytes as the header declares.
func ReadFrame(r io.Reader) (Frame, error) {
	var f Frame
	if _, err := io.ReadFull(r, f.header[:]); err != nil {
		return Frame{}, errors.Annotate(readErr(err), "reading header")
	}

	// The length is a little-endian word; frames short enough to fit in
	// the first byte are the common case.
	n := binary.LittleEndian.Uint32(f.header[lengthOffset : lengthOffset+lengthFieldSize])
	if n > MaxBodyLength {
		return Frame{}, errors.Annotatef(ErrFrameTooLarge, "body length %d", n)
	}

	f.body = make([]byte, n)
	if _, err := io.ReadFull(r, f.body); err != nil {
		return Frame{}, errors.Annotatef(readErr(err), "reading %d byte body", n)
	}
	return f, nil
}

func readErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrFrameTruncated
	}
	return err
}

// BodyLength is the body length declared by the header.
func (f Frame) BodyLength() int {
	return len(f.body)
}

// Compressed reports whether the body is zlib compressed.
func (f Frame) Compressed() bool {
	return f.header[1] == compressMarker
}

// Bytes returns the full frame, header and body.
func (f Frame) Bytes() []byte {
	buf := make([]byte, 0, HeaderLength+len(f.body))
	buf = append(buf, f.header[:]...)
	return append(buf, f.body...)
}

// Payload returns the record bytes carried by the frame, inflating them
// first if the frame is compressed.
func (f Frame) Payload() ([]byte, error) {
	buf := f.Bytes()
	if len(buf) < PayloadOffset {
		return nil, errors.Annotatef(ErrFrameTruncated, "%d byte frame has no payload", len(buf))
	}
	payload := buf[PayloadOffset:]
	if !f.Compressed() {
		return payload, nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Annotate(ErrDecompressionFailed, err.Error())
	}
	defer func() { _ = zr.Close() }()

	out, err := io.ReadAll(io.LimitReader(zr, maxPayloadLength+1))
	if err != nil {
		return nil, errors.Annotate(ErrDecompressionFailed, err.Error())
	}
	if len(out) > maxPayloadLength {
		return nil, errors.Annotatef(ErrDecompressionFailed, "payload exceeds %d bytes", maxPayloadLength)
	}
	return out, nil
}

// Decode reads one response frame and parses the record it carries.
func Decode(r io.Reader) (RawRecord, error) {
	f, err := ReadFrame(r)
	if err != nil {
		return RawRecord{}, errors.Trace(err)
	}
	payload, err := f.Payload()
	if err != nil {
		return RawRecord{}, errors.Trace(err)
	}
	rec, err := ParseRecord(payload)
	if err != nil {
		return RawRecord{}, errors.Trace(err)
	}
	return rec, nil
}

// EncodeResponse builds the response frame a server would send for rec.
// It is the inverse of Decode, and is used to stand in for game servers.
func EncodeResponse(rec RawRecord, compress bool) ([]byte, error) {
	payload := rec.Marshal()

	var body bytes.Buffer
	var size [lengthFieldSize]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(payload)))
	body.Write(size[:])

	marker := byte(plainMarker)
	if compress {
		marker = compressMarker
		zw := zlib.NewWriter(&body)
		if _, err := zw.Write(payload); err != nil {
			return nil, errors.Annotate(err, "compressing payload")
		}
		if err := zw.Close(); err != nil {
			return nil, errors.Annotate(err, "compressing payload")
		}
	} else {
		body.Write(payload)
	}

	out := make([]byte, HeaderLength, HeaderLength+body.Len())
	out[0] = magic
	out[1] = marker
	binary.LittleEndian.PutUint32(out[lengthOffset:], uint32(body.Len()))
	return append(out, body.Bytes()...), nil
}
