package ble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBoard(t *testing.T) {
	cases := []struct {
		name     string
		services []string
		board    string
		write    string
	}{
		{"新版 ffe5", []string{"00001800-0000-1000-8000-00805f9b34fb", "0000ffe5-0000-1000-8000-00805f9b34fb"}, "new", "0000ffe9-0000-1000-8000-00805f9b34fb"},
		{"新版 ffe0 大写", []string{"0000FFE0-0000-1000-8000-00805F9B34FB"}, "new", "0000ffe9-0000-1000-8000-00805f9b34fb"},
		{"修订版", []string{"0003cdd0-0000-1000-8000-00805f9b0131"}, "rev", "0003cdd2-0000-1000-8000-00805f9b0131"},
		{"旧版", []string{"0000fff0-0000-1000-8000-00805f9b34fb"}, "old", "0000fff2-0000-1000-8000-00805f9b34fb"},
		{"未识别按旧版", nil, "old", "0000fff2-0000-1000-8000-00805f9b34fb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := DetectBoard(tc.services)
			assert.Equal(t, tc.board, b.Name)
			assert.Equal(t, tc.write, b.Write)
		})
	}
}
