package session

import (
	"sync"
	"time"

	"github.com/taoyao-code/evse-gateway/internal/protocol/evse"
)

// Identity 设备身份信息（登录广播与版本应答）
type Identity struct {
	Serial          string `json:"serial"`
	Type            int    `json:"type"`
	Phases          int    `json:"phases"`
	Manufacturer    string `json:"manufacturer"`
	Model           string `json:"model"`
	HardwareVersion string `json:"hardware_version"`
	OutputPower     uint32 `json:"output_power"`
	OutputMaxAmps   int    `json:"output_max_amps"`
	Support         string `json:"support"`
	SoftwareVersion string `json:"software_version"`
	Feature         uint32 `json:"feature"`
}

// Config 设备可配置项
type Config struct {
	SystemTime      string `json:"system_time,omitempty"`
	SystemTimeRaw   uint32 `json:"system_time_raw,omitempty"`
	OutputAmps      int    `json:"charge_amps"`
	DeviceName      string `json:"device_name,omitempty"`
	Language        string `json:"language,omitempty"`
	TemperatureUnit string `json:"temperature_unit,omitempty"`
	LCDBrightness   int    `json:"lcd_brightness,omitempty"`
	ChargeAmps      int    `json:"config_charge_amps"`
	RSSI            int    `json:"rssi,omitempty"`
}

// State 单设备会话状态
type State struct {
	Identity   Identity           `json:"identity"`
	Config     Config             `json:"config"`
	Telemetry  *evse.ACStatus     `json:"telemetry,omitempty"`
	LastCharge *evse.ChargeStatus `json:"last_charge,omitempty"`

	Initialized      bool      `json:"initialized"`
	LoggedIn         bool      `json:"logged_in"`
	LoginRequestedAt time.Time `json:"login_requested_at,omitempty"`
}

// Clone 深拷贝
func (s State) Clone() State {
	if s.Telemetry != nil {
		t := cloneACStatus(*s.Telemetry)
		s.Telemetry = &t
	}
	if s.LastCharge != nil {
		c := *s.LastCharge
		s.LastCharge = &c
	}
	return s
}

func cloneACStatus(a evse.ACStatus) evse.ACStatus {
	for _, p := range []**float64{&a.L2Voltage, &a.L2Amperage, &a.L3Voltage, &a.L3Amperage} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return a
}

// Store 会话状态容器：帧处理路径写，HTTP/健康检查读
type Store struct {
	mu          sync.RWMutex
	s           State
	defaultAmps int
}

// NewStore 初始化状态，chargeAmps 为默认充电电流
func NewStore(chargeAmps int) *Store {
	st := &Store{defaultAmps: chargeAmps}
	st.s = st.empty()
	return st
}

func (st *Store) empty() State {
	return State{Config: Config{ChargeAmps: st.defaultAmps}}
}

// Update 在写锁内修改状态
func (st *Store) Update(fn func(s *State)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.s)
}

// Snapshot 返回可并发读取的深拷贝
func (st *Store) Snapshot() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Clone()
}

// Reset 丢弃整个会话状态，只保留默认充电电流
func (st *Store) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s = st.empty()
}

// Serial 当前设备序列号
func (st *Store) Serial() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Identity.Serial
}

// LoggedIn 是否已完成登录
func (st *Store) LoggedIn() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.LoggedIn
}
