package evse

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// 帧结构（除序列号外均为大端）：
//
//	[06 01][len u16][00][serial u64 LE][password 6B][cmd u16][payload][sum u16][0F 02]
const (
	HeaderLen   = 21 // magic+len+key+serial+password+cmd
	TrailerLen  = 4  // sum+tail
	Overhead    = HeaderLen + TrailerLen
	PasswordLen = 6
)

var (
	headMagic = [2]byte{0x06, 0x01}
	tailMagic = [2]byte{0x0F, 0x02}
)

// Frame 已通过校验的一帧
type Frame struct {
	Length   int // 掩码后的声明长度（低8位）
	Key      byte
	Serial   uint64 // 小端解出，回写时原样编码
	Password [PasswordLen]byte
	Cmd      uint16
	Payload  []byte
	Raw      []byte
}

// SerialHex 设备标识：序列号8字节原始顺序的大写十六进制
func (f *Frame) SerialHex() string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], f.Serial)
	return strings.ToUpper(hex.EncodeToString(b[:]))
}

// HasHeader 判断是否以帧头 06 01 开始
func HasHeader(b []byte) bool {
	return len(b) >= 2 && b[0] == headMagic[0] && b[1] == headMagic[1]
}

// DeclaredLength 读取长度字段并只保留低8位（设备侧的既有行为，超过255的帧会被截断）
func DeclaredLength(b []byte) int {
	if len(b) < 4 {
		return 0
	}
	return (int(b[2])<<8 + int(b[3])) & 0xFF
}

// ParsePassword 将6字节可打印ASCII密码转换为定长数组
func ParsePassword(s string) ([PasswordLen]byte, error) {
	var p [PasswordLen]byte
	if len(s) != PasswordLen {
		return p, ErrBadPassword
	}
	for i := 0; i < PasswordLen; i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return p, ErrBadPassword
		}
		p[i] = s[i]
	}
	return p, nil
}
