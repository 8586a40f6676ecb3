package evse

// Reassembler 把 BLE 通知分片拼成候选帧（未做校验和检查）。
// 非并发安全，由单个读协程持有。
type Reassembler struct {
	buf      []byte
	declared int // 0 表示长度尚未可读
	dropped  int
}

// NewReassembler 创建分片重组器
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed 输入一个通知分片，返回已完整的候选帧。
// 一次通知里粘连的多帧会逐个返回，末尾的半帧留在缓冲中。
func (r *Reassembler) Feed(chunk []byte) [][]byte {
	var frames [][]byte
	next := chunk
	for len(next) > 0 {
		frame, rest := r.step(next)
		if frame != nil {
			frames = append(frames, frame)
		}
		next = rest
	}
	return frames
}

func (r *Reassembler) step(chunk []byte) (frame, rest []byte) {
	switch {
	case HasHeader(chunk):
		// 新帧头覆盖未完成的缓存
		if r.buf != nil {
			r.dropped++
		}
		r.buf = append([]byte(nil), chunk...)
		r.declared = 0
	case r.buf != nil:
		r.buf = append(r.buf, chunk...)
		if !HasHeader(r.buf) {
			// 仅缓存了半个帧头（06）而后续不是 01
			r.Reset()
			r.dropped++
			return nil, nil
		}
	case len(chunk) == 1 && chunk[0] == headMagic[0]:
		// 帧头被拆在两次通知之间
		r.buf = []byte{chunk[0]}
		r.declared = 0
		return nil, nil
	default:
		// 无帧头且无缓存：丢弃，等待下一个帧头重新同步
		r.dropped++
		return nil, nil
	}

	// 长度字段在缓冲满 4 字节后从帧头读取；掩码后最大 255，缓冲不会超过它
	if r.declared == 0 {
		if len(r.buf) < 4 {
			return nil, nil
		}
		r.declared = DeclaredLength(r.buf)
	}
	if r.declared > len(r.buf) {
		return nil, nil
	}
	return r.emit()
}

func (r *Reassembler) emit() (frame, rest []byte) {
	buf, n := r.buf, r.declared
	r.Reset()
	if n < Overhead {
		// 声明长度不足最小帧长，整段丢弃
		r.dropped++
		return nil, nil
	}
	if len(buf) > n {
		rest = buf[n:]
	}
	return buf[:n:n], rest
}

// Reset 清空缓存
func (r *Reassembler) Reset() {
	r.buf = nil
	r.declared = 0
}

// Pending 当前缓存字节数
func (r *Reassembler) Pending() int { return len(r.buf) }

// Dropped 累计丢弃的分片/缓冲次数
func (r *Reassembler) Dropped() int { return r.dropped }
