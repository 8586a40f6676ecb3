package evse

// Message 解码后的上行消息
type Message interface {
	Command() uint16
}

// LoginInfo 登录广播(1)/登录应答(2)
type LoginInfo struct {
	Cmd             uint16 `json:"-"`
	Type            int    `json:"type"`
	Phases          int    `json:"phases"`
	Manufacturer    string `json:"manufacturer"`
	Model           string `json:"model"`
	HardwareVersion string `json:"hardware_version"`
	OutputPower     uint32 `json:"output_power"`
	OutputMaxAmps   int    `json:"output_max_amps"`
	Support         string `json:"support"`
}

// HeartbeatPing 设备心跳(3)
type HeartbeatPing struct{}

// ACStatus 单枪交流状态(4/13)
type ACStatus struct {
	Cmd               uint16   `json:"-"`
	LineID            int      `json:"line_id"`
	ErrorInfo         string   `json:"error_info"`
	ErrorCode         int      `json:"error_code"`
	ErrorDetails      string   `json:"error_details"`
	L1Voltage         float64  `json:"l1_voltage"`
	L1Amperage        float64  `json:"l1_amperage"`
	L2Voltage         *float64 `json:"l2_voltage,omitempty"`
	L2Amperage        *float64 `json:"l2_amperage,omitempty"`
	L3Voltage         *float64 `json:"l3_voltage,omitempty"`
	L3Amperage        *float64 `json:"l3_amperage,omitempty"`
	TotalEnergy       float64  `json:"total_energy"`
	CurrentAmount     float64  `json:"current_amount"`
	CurrentEnergy     float64  `json:"current_energy"`
	InnerTempC        float64  `json:"inner_temp_c"`
	InnerTempF        float64  `json:"inner_temp_f"`
	OuterTemp         float64  `json:"outer_temp"`
	EmergencyBtnState int      `json:"emergency_btn_state"`
	PlugStateCode     int      `json:"-"`
	PlugState         string   `json:"plug_state"`
	OutputState       string   `json:"output_state"`
	CurrentStateCode  int      `json:"-"`
	CurrentState      string   `json:"current_state"`
	NewProtocol       int      `json:"new_protocol"`

	// ChargingStatusCode 为 0 表示无法推导
	ChargingStatusCode        int    `json:"-"`
	ChargingStatus            string `json:"charging_status,omitempty"`
	ChargingStatusDescription string `json:"charging_status_description,omitempty"`
	ChargerStatus             int    `json:"charger_status"`
}

// ChargeStatus 充电过程状态(5/6)
type ChargeStatus struct {
	Cmd                uint16  `json:"-"`
	Port               int     `json:"port"`
	CurrentState       int     `json:"current_state"`
	ChargeID           string  `json:"charge_id"`
	StartType          int     `json:"start_type"`
	ChargeType         int     `json:"charge_type"`
	ChargeParam1       int     `json:"charge_param1"`
	ChargeParam2       float64 `json:"charge_param2"`
	ChargeParam3       float64 `json:"charge_param3"`
	ReservationDate    uint32  `json:"reservation_date"`
	UserID             string  `json:"user_id"`
	MaxElectricity     int     `json:"max_electricity"`
	StartDate          uint32  `json:"start_date"`
	Duration           uint32  `json:"duration"`
	StartBattery       float64 `json:"start_battery"`
	ChargeCurrentPower float64 `json:"charge_current_power"`
	Number             float64 `json:"number"`
	ChargePrice        float64 `json:"charge_price"`
	FeeType            int     `json:"fee_type"`
	ChargeFee          float64 `json:"charge_fee"`
}

// ChargeStartAck 启动充电应答(7)
type ChargeStartAck struct {
	LineID            int    `json:"line_id"`
	ReservationResult string `json:"reservation_result"`
	StartResult       int    `json:"start_result"`
	ErrorReason       string `json:"error_reason"`
	OutputAmps        int    `json:"output_amps"`
}

// ChargeStopAck 停止充电应答(8)
type ChargeStopAck struct {
	LineID      int    `json:"line_id"`
	StopResult  string `json:"stop_result"`
	ErrorReason int    `json:"error_reason"`
}

// SystemTime 设备时间(257)
type SystemTime struct {
	Raw   uint32 `json:"system_time_raw"`
	Local string `json:"system_time"`
}

// Version 版本信息(262)
type Version struct {
	HardwareVersion string `json:"hardware_version"`
	SoftwareVersion string `json:"software_version"`
	Feature         uint32 `json:"feature"`
}

// OutputAmps 输出电流(263)
type OutputAmps struct {
	Amps int `json:"charge_amps"`
}

// DeviceName 设备名(264)
type DeviceName struct {
	Name string `json:"device_name"`
}

// Language 界面语言(271)
type Language struct {
	Code int    `json:"-"`
	Name string `json:"language"`
}

// TemperatureUnit 温度单位(274)
type TemperatureUnit struct {
	Code int    `json:"-"`
	Name string `json:"temperature_unit"`
}

// PasswordRejected 密码错误(341)
type PasswordRejected struct{}

// Unknown 未登记的指令
type Unknown struct {
	Cmd     uint16
	Payload []byte
}

func (m *LoginInfo) Command() uint16        { return m.Cmd }
func (m *HeartbeatPing) Command() uint16    { return CmdHeartbeat }
func (m *ACStatus) Command() uint16         { return m.Cmd }
func (m *ChargeStatus) Command() uint16     { return m.Cmd }
func (m *ChargeStartAck) Command() uint16   { return CmdChargeStartAck }
func (m *ChargeStopAck) Command() uint16    { return CmdChargeStopAck }
func (m *SystemTime) Command() uint16       { return CmdSystemTime }
func (m *Version) Command() uint16          { return CmdVersion }
func (m *OutputAmps) Command() uint16       { return CmdOutputAmps }
func (m *DeviceName) Command() uint16       { return CmdDeviceName }
func (m *Language) Command() uint16         { return CmdLanguage }
func (m *TemperatureUnit) Command() uint16  { return CmdTemperatureUnit }
func (m *PasswordRejected) Command() uint16 { return CmdPasswordRejected }
func (m *Unknown) Command() uint16          { return m.Cmd }
