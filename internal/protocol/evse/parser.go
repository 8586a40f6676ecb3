package evse

import (
	"encoding/binary"
	"errors"
)

var (
	ErrShortFrame   = errors.New("short frame")
	ErrBadMagic     = errors.New("invalid magic")
	ErrBadLength    = errors.New("bad length")
	ErrBadChecksum  = errors.New("bad checksum")
	ErrBadPassword  = errors.New("password must be 6 printable ascii characters")
	ErrShortPayload = errors.New("short payload")
)

// Verify 完整性校验：长度、帧头、声明长度、校验和。帧尾不做检查。
func Verify(frame []byte) error {
	if len(frame) < Overhead {
		return ErrShortFrame
	}
	if !HasHeader(frame) {
		return ErrBadMagic
	}
	l := DeclaredLength(frame)
	if l < Overhead || l > len(frame) {
		return ErrBadLength
	}
	got := binary.BigEndian.Uint16(frame[l-4 : l-2])
	if DecodeChecksum(frame[:l-4]) != got {
		return ErrBadChecksum
	}
	return nil
}

// Parse 校验并拆解一帧
func Parse(raw []byte) (*Frame, error) {
	if err := Verify(raw); err != nil {
		return nil, err
	}
	l := DeclaredLength(raw)
	f := &Frame{
		Length: l,
		Key:    raw[4],
		Serial: binary.LittleEndian.Uint64(raw[5:13]),
		Cmd:    binary.BigEndian.Uint16(raw[19:21]),
		Raw:    raw[:l],
	}
	copy(f.Password[:], raw[13:19])
	f.Payload = append([]byte(nil), raw[HeaderLen:l-TrailerLen]...)
	return f, nil
}
