package evse

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPassword = [PasswordLen]byte{'1', '2', '3', '4', '5', '6'}

const testSerial uint64 = 0x1122334455667788

func TestBuildLayout(t *testing.T) {
	raw := Build(testSerial, testPassword, OpHeartbeat, 1)

	require.Len(t, raw, Overhead+1)
	assert.Equal(t, []byte{0x06, 0x01}, raw[0:2])
	assert.Equal(t, uint16(26), binary.BigEndian.Uint16(raw[2:4]))
	assert.Equal(t, byte(0), raw[4])
	assert.Equal(t, []byte{0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}, raw[5:13])
	assert.Equal(t, []byte("123456"), raw[13:19])
	assert.Equal(t, OpHeartbeat, binary.BigEndian.Uint16(raw[19:21]))
	assert.Equal(t, byte(1), raw[21])
	assert.Equal(t, EncodeChecksum(raw[:22]), binary.BigEndian.Uint16(raw[22:24]))
	assert.Equal(t, []byte{0x0F, 0x02}, raw[24:26])
}

func TestFlattenNested(t *testing.T) {
	got := Flatten(1, []byte{2, 3}, "AB", byte(4), []int{5, 6}, nil)
	assert.Equal(t, []byte{1, 2, 3, 'A', 'B', 4, 5, 6}, got)
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		serial  uint64
		cmd     uint16
		payload []byte
	}{
		{"空负载", testSerial, OpLoginRequest, nil},
		{"单字节", 1, OpHeartbeat, []byte{1}},
		{"最大序列号", ^uint64(0), OpDeviceName, EncodeDeviceName("garage")},
		{"最长负载", 42, 0x1234, bytes.Repeat([]byte{0xAB}, 255-Overhead)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := Build(tc.serial, testPassword, tc.cmd, tc.payload)
			f, err := Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, tc.serial, f.Serial)
			assert.Equal(t, tc.cmd, f.Cmd)
			assert.Equal(t, testPassword, f.Password)
			if len(tc.payload) == 0 {
				assert.Empty(t, f.Payload)
			} else {
				assert.Equal(t, tc.payload, f.Payload)
			}
		})
	}
}

func TestVerifyChecksum(t *testing.T) {
	raw := Build(testSerial, testPassword, CmdACStatus, []byte{9, 8, 7, 6, 5})
	require.NoError(t, Verify(raw))

	// 任意单字节被篡改都必须校验失败（不含帧尾）
	for i := 0; i < len(raw)-2; i++ {
		bad := append([]byte(nil), raw...)
		bad[i] ^= 0x01
		assert.Error(t, Verify(bad), "byte %d", i)
	}
}

func TestVerifyErrors(t *testing.T) {
	good := Build(testSerial, testPassword, CmdHeartbeat)

	t.Run("过短", func(t *testing.T) {
		assert.ErrorIs(t, Verify(good[:10]), ErrShortFrame)
	})
	t.Run("帧头错误", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[0] = 0x07
		assert.ErrorIs(t, Verify(bad), ErrBadMagic)
	})
	t.Run("声明长度超出", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[3] = 60
		assert.ErrorIs(t, Verify(bad), ErrBadLength)
	})
	t.Run("校验和错误", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[len(bad)-3]++
		assert.ErrorIs(t, Verify(bad), ErrBadChecksum)
	})
}

func TestChecksumModuli(t *testing.T) {
	b := bytes.Repeat([]byte{0xFF}, 257) // 累加和 65535
	assert.Equal(t, uint16(65535), DecodeChecksum(b))
	assert.Equal(t, uint16(0), EncodeChecksum(b))

	small := []byte{0x06, 0x01, 0x00, 0x19}
	assert.Equal(t, DecodeChecksum(small), EncodeChecksum(small))
}

func TestDeclaredLengthMasked(t *testing.T) {
	assert.Equal(t, 0x2C, DeclaredLength([]byte{0x06, 0x01, 0x01, 0x2C}))
	assert.Equal(t, 0, DeclaredLength([]byte{0x06, 0x01}))
}

func TestSerialHex(t *testing.T) {
	f := &Frame{Serial: testSerial}
	assert.Equal(t, "8877665544332211", f.SerialHex())
}

func TestParsePassword(t *testing.T) {
	p, err := ParsePassword("123456")
	require.NoError(t, err)
	assert.Equal(t, testPassword, p)

	_, err = ParsePassword("12345")
	assert.ErrorIs(t, err, ErrBadPassword)
	_, err = ParsePassword("123456789")
	assert.ErrorIs(t, err, ErrBadPassword)

	t.Run("接受字母与符号", func(t *testing.T) {
		p, err := ParsePassword("aB3 #~")
		require.NoError(t, err)
		assert.Equal(t, [PasswordLen]byte{'a', 'B', '3', ' ', '#', '~'}, p)
	})

	t.Run("拒绝控制字符与非ASCII", func(t *testing.T) {
		for _, s := range []string{"12\t456", "12345\x7f", "1234\xc3\xa9"} {
			_, err := ParsePassword(s)
			assert.ErrorIs(t, err, ErrBadPassword, "%q", s)
		}
	})
}
