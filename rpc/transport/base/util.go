package base

import (
	"encoding/binary"
	"io"
	"math"
	"net"

	"github.com/cockroachdb/errors"
)

// Every frame starts with a fixed header, all integers big endian:
//
//	shard id    uint64  gateway shard the request is addressed to
//	request id  uint64  echoed in the response, matches responses to requests
//	length      uint32  number of payload bytes following the header
const frameHeaderSize = 8 + 8 + 4

// ErrFrameTooLarge is returned for frames whose payload exceeds the configured limit.
// A rejected incoming frame leaves its payload unread, the connection can not be reused.
var ErrFrameTooLarge = errors.New("frame too large")

type frameHeader struct {
	shardID   uint64
	requestID uint64
	length    uint32
}

func (h frameHeader) encode(b []byte) {
	binary.BigEndian.PutUint64(b[0:8], h.shardID)
	binary.BigEndian.PutUint64(b[8:16], h.requestID)
	binary.BigEndian.PutUint32(b[16:20], h.length)
}

func decodeFrameHeader(b []byte) frameHeader {
	return frameHeader{
		shardID:   binary.BigEndian.Uint64(b[0:8]),
		requestID: binary.BigEndian.Uint64(b[8:16]),
		length:    binary.BigEndian.Uint32(b[16:20]),
	}
}

// writeFrame writes header and payload with one vectored write. The length of h is
// taken from payload.
func writeFrame(w io.Writer, h frameHeader, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return errors.Wrapf(ErrFrameTooLarge, "payload of %d bytes", len(payload))
	}
	h.length = uint32(len(payload))

	header := make([]byte, frameHeaderSize)
	h.encode(header)

	bufs := net.Buffers{header, payload}
	_, err := bufs.WriteTo(w)
	return err
}

// readFrame reads the next frame from r. The payload is read into buf if it fits and
// into a new slice otherwise. Frames above limit fail with ErrFrameTooLarge before
// any payload memory is allocated.
func readFrame(r io.Reader, buf []byte, limit uint32) (frameHeader, []byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return frameHeader{}, nil, err
	}

	h := decodeFrameHeader(header[:])
	if h.length > limit {
		return h, nil, errors.Wrapf(ErrFrameTooLarge, "request %d announces %d bytes, limit is %d",
			h.requestID, h.length, limit)
	}
	if h.length == 0 {
		return h, []byte{}, nil
	}

	if uint64(cap(buf)) < uint64(h.length) {
		buf = make([]byte, h.length)
	}
	payload := buf[:h.length]
	if _, err := io.ReadFull(r, payload); err != nil {
		return frameHeader{}, nil, err
	}
	return h, payload, nil
}
