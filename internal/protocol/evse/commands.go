package evse

import (
	"encoding/binary"
	"fmt"
	"time"
)

// 上行指令（设备 -> 网关）
const (
	CmdLoginBeacon      uint16 = 1
	CmdLoginResponse    uint16 = 2
	CmdHeartbeat        uint16 = 3
	CmdACStatus         uint16 = 4
	CmdChargeStatus     uint16 = 5
	CmdChargeStatusAlt  uint16 = 6
	CmdChargeStartAck   uint16 = 7
	CmdChargeStopAck    uint16 = 8
	CmdACStatusAlt      uint16 = 13
	CmdSystemTime       uint16 = 257
	CmdVersion          uint16 = 262
	CmdOutputAmps       uint16 = 263
	CmdDeviceName       uint16 = 264
	CmdLanguage         uint16 = 271
	CmdTemperatureUnit  uint16 = 274
	CmdPasswordRejected uint16 = 341
)

// 下行指令（网关 -> 设备）
const (
	OpLoginConfirm       uint16 = 32769
	OpLoginRequest       uint16 = 32770
	OpHeartbeat          uint16 = 32771
	OpChargeStart        uint16 = 32775
	OpChargeStop         uint16 = 32776
	OpChargeStatusRecord uint16 = 32781
	OpSystemTime         uint16 = 33025
	OpSetPassword        uint16 = 33026
	OpChargeFee          uint16 = 33028
	OpServiceFee         uint16 = 33029
	OpGetVersion         uint16 = 33030
	OpOutputAmps         uint16 = 33031
	OpDeviceName         uint16 = 33032
	OpLanguage           uint16 = 33039
	OpTemperatureUnit    uint16 = 33042
	OpLCDBrightness      uint16 = 33122
)

const (
	userIDLen     = 16
	chargeIDLen   = 16
	nameFieldLen  = 15
	nameTotalLen  = 32
	namePrefix    = "ACP#"
	MaxNameLength = nameFieldLen - len(namePrefix)
)

const (
	actionSet = 1
	actionGet = 2
)

// Request 一条待编码的下行指令
type Request struct {
	Op      uint16
	Name    string
	Payload []byte
}

// Encode 按设备序列号与密码编码成完整帧
func (r Request) Encode(serial uint64, password [PasswordLen]byte) []byte {
	return Build(serial, password, r.Op, r.Payload)
}

func (r Request) String() string {
	return fmt.Sprintf("%s(%d)", r.Name, r.Op)
}

func req(op uint16, name string, parts ...any) Request {
	return Request{Op: op, Name: name, Payload: Flatten(parts...)}
}

func LoginRequest() Request { return req(OpLoginRequest, "login_request") }
func LoginConfirm() Request { return req(OpLoginConfirm, "login_confirm", 1) }
func Heartbeat() Request    { return req(OpHeartbeat, "heartbeat", 1) }

func SetChargeFee() Request  { return req(OpChargeFee, "set_charge_fee", 1, 1, 0, 0) }
func GetChargeFee() Request  { return req(OpChargeFee, "get_charge_fee", 2, 0) }
func SetServiceFee() Request { return req(OpServiceFee, "set_service_fee", 1, 1, 0, 0) }
func GetServiceFee() Request { return req(OpServiceFee, "get_service_fee", 2, 0) }

func GetChargeStatusRecord() Request {
	return req(OpChargeStatusRecord, "get_charge_status_record")
}

func GetVersion() Request { return req(OpGetVersion, "get_version") }

func SetTemperatureUnit(unit int) Request {
	return req(OpTemperatureUnit, "set_temperature_unit", actionSet, unit)
}
func GetTemperatureUnit() Request {
	return req(OpTemperatureUnit, "get_temperature_unit", actionGet, 0)
}

func SetLanguage(lang int) Request { return req(OpLanguage, "set_language", actionSet, lang) }
func GetLanguage() Request         { return req(OpLanguage, "get_language", actionGet, 0) }

// SetDeviceName 名称加 "ACP#" 前缀，空格补齐到15字节，再零填充到32字节
func SetDeviceName(name string) Request {
	return req(OpDeviceName, "set_device_name", actionSet, EncodeDeviceName(name))
}
func GetDeviceName() Request { return req(OpDeviceName, "get_device_name", actionGet, 0) }

// SetSystemTime 写入设备时间（4字节大端 epoch 秒）
func SetSystemTime(now time.Time) Request {
	var ts [4]byte
	binary.BigEndian.PutUint32(ts[:], uint32(now.Unix()))
	return req(OpSystemTime, "set_system_time", actionSet, ts[:])
}
func GetSystemTime() Request { return req(OpSystemTime, "get_system_time", actionGet, 0) }

func SetOutputAmps(amps int) Request {
	return req(OpOutputAmps, "set_output_amps", actionSet, amps)
}
func GetOutputAmps() Request { return req(OpOutputAmps, "get_output_amps", actionGet, 0) }

func SetLCDBrightness(level int) Request {
	return req(OpLCDBrightness, "set_lcd_brightness", 0, 2, level, 0, 0, 0, 0, 0)
}
func GetLCDBrightness() Request {
	return req(OpLCDBrightness, "get_lcd_brightness", 0, 1, 0, 1, 0, 0, 0, 0)
}

// SetPassword 修改设备蓝牙密码
func SetPassword(p [PasswordLen]byte) Request {
	return req(OpSetPassword, "set_password", p[:])
}

// ChargeStart 立即充电：线路号、用户ID、充电ID、开始时间、最大电流
func ChargeStart(lineID int, userID string, now time.Time, maxAmps int) Request {
	var start [4]byte
	binary.BigEndian.PutUint32(start[:], uint32(now.Unix()))
	return req(OpChargeStart, "charge_start",
		lineID,
		PadASCII(userID, userIDLen),
		ChargeID(now),
		0, // 非预约
		start[:],
		1, // start type
		1, // charge type
		0xFF, 0xFF,
		0xFF, 0xFF,
		0xFF, 0xFF,
		maxAmps,
	)
}

// ChargeStop 停止充电
func ChargeStop(userID string) Request {
	return req(OpChargeStop, "charge_stop", 1, PadASCII(userID, userIDLen), make([]byte, 30))
}

// ChargeID 充电流水号：yyyyMMddHHmm + "1337"，零填充到16字节
func ChargeID(now time.Time) []byte {
	return PadASCII(now.Format("200601021504")+"1337", chargeIDLen)
}

// EncodeDeviceName 设备名编码
func EncodeDeviceName(name string) []byte {
	b := []byte(namePrefix + name)
	if len(b) > nameFieldLen {
		b = b[:nameFieldLen]
	}
	for len(b) < nameFieldLen {
		b = append(b, ' ')
	}
	out := make([]byte, nameTotalLen)
	copy(out, b)
	return out
}

// PadASCII 截断或零填充到固定长度
func PadASCII(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}
