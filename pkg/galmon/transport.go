package galmon

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// magic is the frame marker of the galmon transport.
var magic = []byte("bert")

const headerBytes = 6

// Reader reads navmon packets from a galmon transport stream: each
// record is the 4-byte magic, a 2-byte big-endian payload length and a
// protobuf payload.
type Reader struct {
	r   io.Reader
	buf []byte
}

// NewReader wraps r as a galmon transport reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, buf: make([]byte, 2048)}
}

// ReadPacket reads and decodes the next navmon packet. It returns
// io.EOF (possibly wrapped) at the end of the stream.
func (t *Reader) ReadPacket() (*NavMonMessage, error) {
	if _, err := io.ReadFull(t.r, t.buf[:headerBytes]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, errors.Wrap(err, "reading packet header")
	}
	if string(t.buf[:4]) != string(magic) {
		return nil, errors.New("incorrect galmon magic value")
	}
	size := int(binary.BigEndian.Uint16(t.buf[4:6]))
	if size > len(t.buf) {
		t.buf = make([]byte, size)
	}
	if _, err := io.ReadFull(t.r, t.buf[:size]); err != nil {
		return nil, errors.Wrap(err, "reading protobuf frame")
	}
	m, err := Unmarshal(t.buf[:size])
	if err != nil {
		return nil, errors.Wrap(err, "decoding protobuf frame")
	}
	return m, nil
}

// Writer writes navmon packets to a galmon transport stream.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w as a galmon transport writer.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// WritePacket encodes and writes one navmon packet, returning the
// number of bytes written.
func (t *Writer) WritePacket(m *NavMonMessage) (int, error) {
	payload := Marshal(m)
	if len(payload) > 0xffff {
		return 0, errors.Errorf("packet of %d bytes exceeds frame size", len(payload))
	}
	frame := make([]byte, 0, headerBytes+len(payload))
	frame = append(frame, magic...)
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	if _, err := t.w.Write(frame); err != nil {
		return 0, errors.Wrap(err, "writing packet")
	}
	return len(frame), nil
}
