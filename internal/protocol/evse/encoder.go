package evse

import (
	"encoding/binary"
	"fmt"
)

// Build 组装下行帧。parts 依次展开为 payload，支持 byte/int/[]byte/string。
func Build(serial uint64, password [PasswordLen]byte, cmd uint16, parts ...any) []byte {
	payload := Flatten(parts...)
	length := Overhead + len(payload)

	out := make([]byte, 0, length)
	out = append(out, headMagic[0], headMagic[1])
	out = binary.BigEndian.AppendUint16(out, uint16(length))
	out = append(out, 0x00)
	out = binary.LittleEndian.AppendUint64(out, serial)
	out = append(out, password[:]...)
	out = binary.BigEndian.AppendUint16(out, cmd)
	out = append(out, payload...)
	out = binary.BigEndian.AppendUint16(out, EncodeChecksum(out))
	out = append(out, tailMagic[0], tailMagic[1])
	return out
}

// Flatten 将混合参数展开为字节序列，int 取低8位
func Flatten(parts ...any) []byte {
	var out []byte
	for _, p := range parts {
		switch v := p.(type) {
		case byte:
			out = append(out, v)
		case int:
			out = append(out, byte(v))
		case []byte:
			out = append(out, v...)
		case string:
			out = append(out, v...)
		case []int:
			for _, x := range v {
				out = append(out, byte(x))
			}
		case nil:
		default:
			panic(fmt.Sprintf("evse: unsupported payload part %T", p))
		}
	}
	return out
}
