package tape

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var magic = [4]byte{'M', 'T', 'P', '1'}

var ErrBadMagic = errors.New("not a tape file")

type fileHeader struct {
	Magic [4]byte
	Header
	DataLen uint32
}

// WriteTo writes the tape as a standalone blob: magic, header, payload.
func (t *Tape) WriteTo(w io.Writer) (int64, error) {
	buf := new(bytes.Buffer)
	fh := fileHeader{Magic: magic, Header: t.header, DataLen: uint32(len(t.data))}
	if err := binary.Write(buf, binary.BigEndian, fh); err != nil {
		return 0, errors.Wrap(err, "encoding tape header")
	}
	buf.Write(t.data)
	return buf.WriteTo(w)
}

func (t *Tape) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := t.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *Tape) UnmarshalBinary(dat []byte) error {
	res, err := Read(bytes.NewReader(dat))
	if err != nil {
		return err
	}
	*t = *res
	return nil
}

// Read is the inverse of WriteTo. The payload is checked to decode.
func Read(r io.Reader) (*Tape, error) {
	var fh fileHeader
	if err := binary.Read(r, binary.BigEndian, &fh); err != nil {
		return nil, errors.Wrap(err, "reading tape header")
	}
	if fh.Magic != magic {
		return nil, ErrBadMagic
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(fh.DataLen)))
	if err != nil {
		return nil, errors.Wrap(err, "reading tape payload")
	}
	if len(data) != int(fh.DataLen) {
		return nil, errors.Wrapf(ErrTruncated, "payload has %d of %d bytes", len(data), fh.DataLen)
	}
	if _, err := Decode(fh.StartTime, data); err != nil {
		return nil, err
	}
	return &Tape{header: fh.Header, data: data}, nil
}
