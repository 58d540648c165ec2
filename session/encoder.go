package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	sessionFormatVersionCurrent = 1

	flagEmailVerified byte = 1 << 0
)

var errFieldTooLong = errors.New("session field too long")

// Encode serializes s for the cache tier. The token is not included.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(128 + len(s.UserAgent))

	buf.WriteByte(sessionFormatVersionCurrent)

	for _, field := range []string{s.ID, s.UserID, s.IPAddress, s.UserAgent, s.User.Email, s.User.Name} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	var flags byte
	if s.User.EmailVerified {
		flags |= flagEmailVerified
	}
	buf.WriteByte(flags)

	for _, ts := range []time.Time{s.CreatedAt, s.UpdatedAt, s.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts.UnixMilli()); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a cache entry written by Encode.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, fmt.Errorf("unsupported session schema version %d", version)
	}

	s := &Session{}
	for _, dst := range []*string{&s.ID, &s.UserID, &s.IPAddress, &s.UserAgent, &s.User.Email, &s.User.Name} {
		if *dst, err = readString(reader); err != nil {
			return nil, err
		}
	}
	s.User.ID = s.UserID

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	s.User.EmailVerified = flags&flagEmailVerified != 0

	for _, dst := range []*time.Time{&s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt} {
		var ms int64
		if err := binary.Read(reader, binary.BigEndian, &ms); err != nil {
			return nil, err
		}
		*dst = time.UnixMilli(ms)
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session record")
	}
	return s, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 0xFFFF {
		return errFieldTooLong
	}
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
