package evse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame(cmd uint16, payload ...byte) []byte {
	return Build(testSerial, testPassword, cmd, payload)
}

func TestReassemblerSingleDelivery(t *testing.T) {
	r := NewReassembler()
	raw := sampleFrame(CmdHeartbeat)

	frames := r.Feed(raw)
	require.Len(t, frames, 1)
	assert.Equal(t, raw, frames[0])
	assert.Zero(t, r.Pending())
}

func TestReassemblerEveryBoundary(t *testing.T) {
	raw := sampleFrame(CmdACStatus, 0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70)

	for k := 1; k < len(raw); k++ {
		r := NewReassembler()
		var got [][]byte
		got = append(got, r.Feed(raw[:k])...)
		got = append(got, r.Feed(raw[k:])...)
		require.Len(t, got, 1, "split at %d", k)
		assert.Equal(t, raw, got[0], "split at %d", k)
	}
}

func TestReassemblerThreeWaySplits(t *testing.T) {
	raw := sampleFrame(CmdVersion, 0x41, 0x42, 0x43)

	for i := 1; i < len(raw)-1; i++ {
		for j := i + 1; j < len(raw); j++ {
			r := NewReassembler()
			var got [][]byte
			for _, part := range [][]byte{raw[:i], raw[i:j], raw[j:]} {
				got = append(got, r.Feed(part)...)
			}
			require.Len(t, got, 1, "split at %d/%d", i, j)
			assert.Equal(t, raw, got[0])
		}
	}
}

func TestReassemblerCoalesced(t *testing.T) {
	a := sampleFrame(CmdHeartbeat)
	b := sampleFrame(CmdOutputAmps, 2, 16)

	r := NewReassembler()
	frames := r.Feed(append(append([]byte(nil), a...), b...))
	require.Len(t, frames, 2)
	assert.Equal(t, a, frames[0])
	assert.Equal(t, b, frames[1])
}

func TestReassemblerTrailingPartial(t *testing.T) {
	a := sampleFrame(CmdHeartbeat)
	b := sampleFrame(CmdOutputAmps, 2, 16)
	chunk := append(append([]byte(nil), a...), b[:10]...)

	r := NewReassembler()
	frames := r.Feed(chunk)
	require.Len(t, frames, 1)
	assert.Equal(t, a, frames[0])
	assert.Equal(t, 10, r.Pending())

	frames = r.Feed(b[10:])
	require.Len(t, frames, 1)
	assert.Equal(t, b, frames[0])
}

func TestReassemblerResync(t *testing.T) {
	r := NewReassembler()

	t.Run("无缓存的续包被丢弃", func(t *testing.T) {
		assert.Empty(t, r.Feed([]byte{0x01, 0x02, 0x03}))
		assert.Equal(t, 1, r.Dropped())
	})

	t.Run("新帧头覆盖半帧", func(t *testing.T) {
		partial := sampleFrame(CmdHeartbeat)[:12]
		assert.Empty(t, r.Feed(partial))
		raw := sampleFrame(CmdLanguage, 2, 1)
		frames := r.Feed(raw)
		require.Len(t, frames, 1)
		assert.Equal(t, raw, frames[0])
	})

	t.Run("声明长度过小", func(t *testing.T) {
		bad := []byte{0x06, 0x01, 0x00, 0x05, 0x00, 0x00}
		assert.Empty(t, r.Feed(bad))
		assert.Zero(t, r.Pending())
	})

	t.Run("半个帧头后接错误字节", func(t *testing.T) {
		assert.Empty(t, r.Feed([]byte{0x06}))
		assert.Empty(t, r.Feed([]byte{0x07, 0x08}))
		assert.Zero(t, r.Pending())
	})
}

func TestReassemblerMaxDeclared(t *testing.T) {
	r := NewReassembler()
	head := []byte{0x06, 0x01, 0x00, 0xFF}
	assert.Empty(t, r.Feed(head))

	var frames [][]byte
	for i := 0; i < 13; i++ {
		frames = append(frames, r.Feed(make([]byte, 20))...)
		assert.LessOrEqual(t, r.Pending(), 0xFF)
	}
	// 达到声明长度后输出候选帧，多余的无帧头字节被丢弃
	require.Len(t, frames, 1)
	assert.Len(t, frames[0], 255)
	assert.Zero(t, r.Pending())
	assert.Error(t, Verify(frames[0]))
}

func TestReassemblerSplitHeader(t *testing.T) {
	raw := sampleFrame(CmdHeartbeat)

	t.Run("单字节06被缓存等待后续", func(t *testing.T) {
		r := NewReassembler()
		assert.Empty(t, r.Feed(raw[:1]))
		assert.Equal(t, 1, r.Pending())
		frames := r.Feed(raw[1:])
		require.Len(t, frames, 1)
		assert.Equal(t, raw, frames[0])
		assert.Zero(t, r.Dropped())
	})

	t.Run("长度字段未到齐时按帧头长度等待", func(t *testing.T) {
		r := NewReassembler()
		assert.Empty(t, r.Feed(raw[:3]))
		// 续包到达后长度从帧头读取，而不是按已收字节数截断
		assert.Empty(t, r.Feed(raw[3:10]))
		assert.Equal(t, 10, r.Pending())
		frames := r.Feed(raw[10:])
		require.Len(t, frames, 1)
		assert.Equal(t, raw, frames[0])
	})

	t.Run("长度高字节被忽略", func(t *testing.T) {
		masked := append([]byte(nil), raw...)
		masked[2] = 0x01
		r := NewReassembler()
		frames := r.Feed(masked)
		require.Len(t, frames, 1)
		assert.Len(t, frames[0], len(raw))
	})
}
