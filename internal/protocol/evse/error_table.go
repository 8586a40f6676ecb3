package evse

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrorTable 故障位索引 -> 描述。可用 YAML 覆盖或补充：
//
//	faults:
//	  7: "Over Temperature (board)"
//	  16: "Vendor specific"
type ErrorTable struct {
	Faults map[int]string `yaml:"faults"`
}

// DefaultErrorTable 出厂故障表
func DefaultErrorTable() *ErrorTable {
	return &ErrorTable{
		Faults: map[int]string{
			0:   "Relay Stick Error",
			1:   "Relay Stick Error",
			2:   "Relay Stick Error",
			3:   "OFFLINE",
			4:   "CC Error",
			5:   "CP Error",
			6:   "Emergency Stop",
			7:   "Over Temperature",
			8:   "Over Temperature",
			9:   "Unknown",
			10:  "Leakage Protection",
			11:  "Short Circuit",
			12:  "Over Current",
			13:  "Ungrounded",
			14:  "Over Voltage",
			15:  "Low Voltage",
			25:  "Input Power Error",
			26:  "DLB Over Current - Mains overload",
			27:  "Diode Short Circuit",
			28:  "RTC Failure",
			29:  "Flash Memory Failure",
			30:  "EEPROM Failure",
			31:  "Metering Module Failure",
			255: "No Error",
		},
	}
}

// LoadErrorTable 读取 YAML 并合并到默认表
func LoadErrorTable(path string) (*ErrorTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read error table: %w", err)
	}
	var override ErrorTable
	if err := yaml.Unmarshal(b, &override); err != nil {
		return nil, fmt.Errorf("unmarshal error table: %w", err)
	}
	t := DefaultErrorTable()
	t.Merge(&override)
	return t, nil
}

// Merge 用 other 中的条目覆盖当前表
func (t *ErrorTable) Merge(other *ErrorTable) {
	if other == nil {
		return
	}
	for k, v := range other.Faults {
		t.Faults[k] = v
	}
}

// Describe 以故障位串（MSB 在前）中第一个置位的下标查表
func (t *ErrorTable) Describe(bits string) (int, string) {
	idx := strings.IndexByte(bits, '1')
	if idx < 0 {
		return NoErrorCode, t.lookup(NoErrorCode)
	}
	if desc, ok := t.Faults[idx]; ok {
		return idx, desc
	}
	return idx, t.lookup(NoErrorCode)
}

func (t *ErrorTable) lookup(code int) string {
	if t != nil && t.Faults != nil {
		if s, ok := t.Faults[code]; ok {
			return s
		}
	}
	return "No Error"
}

// FaultBits 将故障字节展开为二进制位串
func FaultBits(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		fmt.Fprintf(&sb, "%08b", c)
	}
	return sb.String()
}
