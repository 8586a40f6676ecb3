package evse

// 收发两侧校验取模不同：接收按 65536，发送按 0xFFFF。
// 帧长不超过255字节时累加和小于65535，两者结果一致。

// DecodeChecksum 接收侧校验：字节和 mod 65536
func DecodeChecksum(b []byte) uint16 {
	var sum uint32
	for _, c := range b {
		sum += uint32(c)
	}
	return uint16(sum % 65536)
}

// EncodeChecksum 发送侧校验：字节和 mod 0xFFFF
func EncodeChecksum(b []byte) uint16 {
	var sum uint32
	for _, c := range b {
		sum += uint32(c)
	}
	return uint16(sum % 0xFFFF)
}
