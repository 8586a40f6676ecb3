package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/taoyao-code/evse-gateway/internal/gateway"
)

// ErrBadPayload 命令负载不是 JSON 对象
var ErrBadPayload = errors.New("mqtt: command payload is not a json object")

// ParseIntent 解析命令主题负载，返回控制指令与未知字段名。
// 已知字段类型错误时跳过该字段，错误汇总返回；null 视为未携带。
func ParseIntent(payload []byte) (gateway.Intent, []string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
		return gateway.Intent{}, nil, ErrBadPayload
	}

	var errs []error
	in := gateway.Intent{
		ChargeState:     field[bool](raw, "charge_state", &errs),
		ChargeAmps:      field[int](raw, "charge_amps", &errs),
		LCDBrightness:   field[int](raw, "lcd_brightness", &errs),
		TemperatureUnit: field[string](raw, "temperature_unit", &errs),
		Language:        field[string](raw, "language", &errs),
		DeviceName:      field[string](raw, "device_name", &errs),
	}

	unknown := make([]string, 0, len(raw))
	for k := range raw {
		unknown = append(unknown, k)
	}
	sort.Strings(unknown)
	return in, unknown, errors.Join(errs...)
}

// field 取出并删除 key，剩余的即未知字段
func field[T any](raw map[string]json.RawMessage, key string, errs *[]error) *T {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	delete(raw, key)
	var out *T
	if err := json.Unmarshal(v, &out); err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s: %v", gateway.ErrInvalidIntent, key, err))
		return nil
	}
	return out
}
