package evse

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

type decodeFunc func(d *Decoder, cmd uint16, p []byte) (Message, error)

// 指令码 -> 解码函数（静态表）
var decoders = map[uint16]decodeFunc{
	CmdLoginBeacon:      (*Decoder).loginInfo,
	CmdLoginResponse:    (*Decoder).loginInfo,
	CmdHeartbeat:        (*Decoder).heartbeat,
	CmdACStatus:         (*Decoder).acStatus,
	CmdACStatusAlt:      (*Decoder).acStatus,
	CmdChargeStatus:     (*Decoder).chargeStatus,
	CmdChargeStatusAlt:  (*Decoder).chargeStatus,
	CmdChargeStartAck:   (*Decoder).chargeStartAck,
	CmdChargeStopAck:    (*Decoder).chargeStopAck,
	CmdSystemTime:       (*Decoder).systemTime,
	CmdVersion:          (*Decoder).version,
	CmdOutputAmps:       (*Decoder).outputAmps,
	CmdDeviceName:       (*Decoder).deviceName,
	CmdLanguage:         (*Decoder).language,
	CmdTemperatureUnit:  (*Decoder).temperatureUnit,
	CmdPasswordRejected: (*Decoder).passwordRejected,
}

// Known 指令是否在解码表中
func Known(cmd uint16) bool {
	_, ok := decoders[cmd]
	return ok
}

// Decoder 负载解码器
type Decoder struct {
	Errors   *ErrorTable
	Location *time.Location
}

// NewDecoder 创建解码器，errs 为空时使用默认故障表
func NewDecoder(errs *ErrorTable) *Decoder {
	if errs == nil {
		errs = DefaultErrorTable()
	}
	return &Decoder{Errors: errs, Location: time.Local}
}

// Decode 按指令码解码负载；未登记的指令返回 *Unknown
func (d *Decoder) Decode(f *Frame) (Message, error) {
	fn, ok := decoders[f.Cmd]
	if !ok {
		return &Unknown{Cmd: f.Cmd, Payload: f.Payload}, nil
	}
	msg, err := fn(d, f.Cmd, f.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode cmd %d: %w", f.Cmd, err)
	}
	return msg, nil
}

func need(p []byte, n int) error {
	if len(p) < n {
		return fmt.Errorf("%w: need %d, got %d", ErrShortPayload, n, len(p))
	}
	return nil
}

// u32 按设备约定的字节序（高位在前）组合4字节
func u32(b []byte) uint32  { return binary.BigEndian.Uint32(b) }
func u16(b []byte) int     { return int(binary.BigEndian.Uint16(b)) }
func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func le16(b []byte) int    { return int(binary.LittleEndian.Uint16(b)) }

func round(v float64, n int) float64 {
	p := math.Pow10(n)
	return math.Round(v*p) / p
}

// text 去除 NUL 后的字符串
func text(b []byte) string {
	return string(bytes.Trim(b, "\x00"))
}

// slice 越界时截短，兼容短负载
func slice(p []byte, from, to int) []byte {
	if from >= len(p) {
		return nil
	}
	if to > len(p) {
		to = len(p)
	}
	return p[from:to]
}

func (d *Decoder) loginInfo(cmd uint16, p []byte) (Message, error) {
	if err := need(p, 54); err != nil {
		return nil, err
	}
	return &LoginInfo{
		Cmd:             cmd,
		Type:            int(p[0]),
		Phases:          Phases(int(p[0])),
		Manufacturer:    text(p[1:16]),
		Model:           text(p[17:32]),
		HardwareVersion: text(p[33:49]),
		OutputPower:     u32(p[49:53]),
		OutputMaxAmps:   int(p[53]),
		Support:         text(slice(p, 54, 69)),
	}, nil
}

func (d *Decoder) heartbeat(uint16, []byte) (Message, error) {
	return &HeartbeatPing{}, nil
}

func (d *Decoder) passwordRejected(uint16, []byte) (Message, error) {
	return &PasswordRejected{}, nil
}

// temperature 原始值 255 表示无传感器
func temperature(raw int) float64 {
	if raw == 255 {
		return -1.0
	}
	return round(float64(raw-20000)*0.01, 1)
}

func (d *Decoder) acStatus(cmd uint16, p []byte) (Message, error) {
	if err := need(p, 23); err != nil {
		return nil, err
	}
	faultBytes := p[21:23]
	if len(p) >= 25 {
		faultBytes = p[21:25]
	}
	bits := FaultBits(faultBytes)
	errCode, errDesc := d.Errors.Describe(bits)

	plug := int(p[18])
	current := int(p[20])
	inner := temperature(u16(p[13:15]))

	s := &ACStatus{
		Cmd:               cmd,
		LineID:            int(p[0]),
		ErrorInfo:         bits,
		ErrorCode:         errCode,
		ErrorDetails:      errDesc,
		L1Voltage:         round(float64(u16(p[1:3]))*0.1, 1),
		L1Amperage:        round(float64(u16(p[3:5]))*0.01, 1),
		TotalEnergy:       round(float64(u32(p[5:9]))/1000, 2),
		CurrentAmount:     round(float64(u32(p[9:13]))*0.01, 1),
		InnerTempC:        inner,
		InnerTempF:        round(inner*9/5+32, 2),
		OuterTemp:         temperature(u16(p[15:17])),
		EmergencyBtnState: int(p[17]),
		PlugStateCode:     plug,
		PlugState:         PlugStateName(plug),
		OutputState:       OutputStateName(int(p[19])),
		CurrentStateCode:  current,
		CurrentState:      CurrentStateName(current),
	}
	if len(p) > 33 {
		s.NewProtocol = 1
	}
	if code, ok := ChargingStatus(plug, current); ok {
		s.ChargingStatusCode = code
		s.ChargingStatus, s.ChargingStatusDescription, s.ChargerStatus = ChargingStatusInfo(code)
	}

	if s.L1Voltage != 0 && s.L1Amperage != 0 {
		s.CurrentEnergy = s.L1Voltage * s.L1Amperage / 1000
	}
	if len(p) > 25 {
		l2v := round(float64(beOrZero16(p, 25))*0.1, 1)
		l2a := round(float64(beOrZero16(p, 27))*0.01, 1)
		l3v := round(float64(beOrZero16(p, 29))*0.1, 1)
		l3a := round(float64(beOrZero16(p, 31))*0.01, 1)
		s.L2Voltage, s.L2Amperage, s.L3Voltage, s.L3Amperage = &l2v, &l2a, &l3v, &l3a
		s.CurrentEnergy = round(s.CurrentEnergy+l2v*l2a/1000+l3v*l3a/1000, 1)
	}
	return s, nil
}

func beOrZero16(p []byte, off int) int {
	if off+2 > len(p) {
		return 0
	}
	return u16(p[off : off+2])
}

func (d *Decoder) chargeStatus(cmd uint16, p []byte) (Message, error) {
	if err := need(p, 74); err != nil {
		return nil, err
	}
	state := int(p[1])
	if len(p) > 74 && (p[74] == 18 || p[74] == 19) {
		state = int(p[74])
	}
	param2 := float64(u16(p[22:24])) * 0.01
	if u16(p[22:24]) == 0xFFFF {
		param2 = 655.35
	}
	param3 := float64(u16(p[24:26])) * 0.01
	if u16(p[24:26]) == 0xFFFF {
		param3 = 65535.0
	}
	return &ChargeStatus{
		Cmd:                cmd,
		Port:               int(p[0]),
		CurrentState:       state,
		ChargeID:           text(p[2:18]),
		StartType:          int(p[18]),
		ChargeType:         int(p[19]),
		ChargeParam1:       u16(p[20:22]),
		ChargeParam2:       param2,
		ChargeParam3:       param3,
		ReservationDate:    le32(p[26:30]),
		UserID:             text(p[30:46]),
		MaxElectricity:     int(p[46]),
		StartDate:          le32(p[47:51]),
		Duration:           le32(p[51:55]),
		StartBattery:       float64(u32(p[55:59])) * 0.01,
		ChargeCurrentPower: float64(u32(p[59:63])) * 0.01,
		Number:             round(float64(u32(p[63:67]))*0.01, 2),
		ChargePrice:        float64(le32(p[67:71])) * 0.01,
		FeeType:            int(p[71]),
		ChargeFee:          float64(le16(p[72:74])) * 0.01,
	}, nil
}

func (d *Decoder) chargeStartAck(_ uint16, p []byte) (Message, error) {
	if err := need(p, 5); err != nil {
		return nil, err
	}
	return &ChargeStartAck{
		LineID:            int(p[0]),
		ReservationResult: ChargeStartReservation(int(p[1])),
		StartResult:       int(p[2]),
		ErrorReason:       ChargeStartError(int(p[3])),
		OutputAmps:        int(p[4]),
	}, nil
}

func (d *Decoder) chargeStopAck(_ uint16, p []byte) (Message, error) {
	if err := need(p, 3); err != nil {
		return nil, err
	}
	return &ChargeStopAck{
		LineID:      int(p[0]),
		StopResult:  StopReason(int(p[1])),
		ErrorReason: int(p[2]),
	}, nil
}

func (d *Decoder) systemTime(_ uint16, p []byte) (Message, error) {
	if err := need(p, 5); err != nil {
		return nil, err
	}
	epoch := u32(p[1:5])
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	return &SystemTime{
		Raw:   epoch,
		Local: time.Unix(int64(epoch), 0).In(loc).Format("2006-01-02T15:04:05"),
	}, nil
}

func (d *Decoder) version(_ uint16, p []byte) (Message, error) {
	if err := need(p, 36); err != nil {
		return nil, err
	}
	return &Version{
		HardwareVersion: strings.TrimSpace(text(p[0:15])),
		SoftwareVersion: text(p[16:31]),
		Feature:         u32(p[32:36]),
	}, nil
}

func (d *Decoder) outputAmps(_ uint16, p []byte) (Message, error) {
	if err := need(p, 2); err != nil {
		return nil, err
	}
	return &OutputAmps{Amps: int(p[1])}, nil
}

func (d *Decoder) deviceName(_ uint16, p []byte) (Message, error) {
	if err := need(p, 2); err != nil {
		return nil, err
	}
	raw := bytes.ReplaceAll(slice(p, 1, 32), []byte{0}, nil)
	return &DeviceName{Name: strings.TrimSpace(strings.ToValidUTF8(string(raw), "�"))}, nil
}

func (d *Decoder) language(_ uint16, p []byte) (Message, error) {
	if err := need(p, 2); err != nil {
		return nil, err
	}
	return &Language{Code: int(p[1]), Name: LanguageName(int(p[1]))}, nil
}

func (d *Decoder) temperatureUnit(_ uint16, p []byte) (Message, error) {
	if err := need(p, 2); err != nil {
		return nil, err
	}
	return &TemperatureUnit{Code: int(p[1]), Name: TemperatureUnitName(int(p[1]))}, nil
}
