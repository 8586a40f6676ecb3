package evse

import (
	"fmt"
	"strings"
)

// 插枪状态
const (
	PlugDisconnected      = 1
	PlugConnectedUnlocked = 2
	PlugConnectedLocked   = 4
)

// NoErrorCode 无故障
const NoErrorCode = 255

var plugStates = []string{
	"Unknown 0",
	"Disconnected",
	"Connected Unlocked",
	"Unknown 1",
	"Connected Locked",
	"Unknown 2",
	"Unknown 3",
	"Unknown 4",
	"Unknown 5",
}

var outputStates = []string{
	"Unknown 0",
	"Charging",
	"Idle",
	"Unknown 1",
	"Unknown 2",
	"Unknown 3",
	"Unknown 4",
	"Unknown 5",
	"Unknown 6",
}

var currentStates = []string{
	"Fault",
	"Charging Fault 1",
	"Charging Fault 2",
	"Unknown 1",
	"Unknown 2",
	"Unknown 3",
	"Unknown 4",
	"Unknown 5",
	"Unknown 6",
	"Waiting for swipe",
	"waiting for button",
	"Not Connected",
	"Ready to charge",
	"Charging",
	"Completed",
	"Unknown 7",
	"Completed Full Charge",
	"Unknown 8",
	"Unknown 9",
	"Charging Reservation",
	"Unknown 10",
}

func indexed(names []string, v int) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return fmt.Sprintf("Unknown (%d)", v)
}

func PlugStateName(v int) string    { return indexed(plugStates, v) }
func OutputStateName(v int) string  { return indexed(outputStates, v) }
func CurrentStateName(v int) string { return indexed(currentStates, v) }

// 充电状态码 -> (名称, 描述, 充电桩工作标志)
var chargingStatuses = map[int]struct {
	name, desc string
	active     int
}{
	1:  {"Start", "EV is connected, please press start", 0},
	2:  {"Finish Charging", "Charging", 1},
	3:  {"Waiting", "Charging has started, waiting for EV.", 1},
	4:  {"Finished", "Charging completed", 0},
	5:  {"Finished", "Charging completed", 0},
	6:  {"Cancel", "Charging reservation.", 0},
	7:  {"Connect", "The plug is not connected, please start charging after connecting.", 0},
	8:  {"Fault", "See Error State", 0},
	9:  {"Start", "Wait for the swipe to start", 0},
	10: {"Start", "Wait for the button to activate", 0},
	11: {"Finish Charging", "See Error State", 0},
}

// ChargingStatus 由插枪状态与当前状态推导充电状态码，无对应时返回 false
func ChargingStatus(plug, current int) (int, bool) {
	switch current {
	case 1:
		return 8, true
	case 2, 3:
		return 11, true
	case 10:
		return 9, true
	case 11:
		return 10, true
	case 12:
		return 7, true
	case 13:
		return 1, true
	case 14:
		switch plug {
		case PlugConnectedLocked:
			return 2, true
		case PlugConnectedUnlocked:
			return 3, true
		}
	case 15:
		if plug == PlugConnectedLocked || plug == PlugConnectedUnlocked {
			return 4, true
		}
	case 17:
		return 5, true
	case 20:
		return 6, true
	}
	return 0, false
}

// ChargingStatusInfo 返回状态码对应的名称、描述与工作标志
func ChargingStatusInfo(code int) (name, desc string, active int) {
	s, ok := chargingStatuses[code]
	if !ok {
		return "", "", 0
	}
	return s.name, s.desc, s.active
}

// Phases 设备类型 10-15、22-25 为三相
func Phases(deviceType int) int {
	switch {
	case deviceType >= 10 && deviceType <= 15, deviceType >= 22 && deviceType <= 25:
		return 3
	default:
		return 1
	}
}

type namedCode struct {
	Name string
	Code int
}

var temperatureUnits = []namedCode{
	{"Celcius", 1},
	{"Fahrenheit", 2},
}

var languages = []namedCode{
	{"English", 1},
	{"Italiano", 2},
	{"Deutsch", 3},
	{"Français", 4},
	{"Español", 5},
	{"עברית", 6},
	{"Polski", 7},
	{"中文", 8},
}

func codeByName(table []namedCode, name string) (int, bool) {
	for _, e := range table {
		if strings.EqualFold(e.Name, strings.TrimSpace(name)) {
			return e.Code, true
		}
	}
	return 0, false
}

func nameByCode(table []namedCode, code int) string {
	for _, e := range table {
		if e.Code == code {
			return e.Name
		}
	}
	return ""
}

func TemperatureUnitCode(name string) (int, bool) { return codeByName(temperatureUnits, name) }
func TemperatureUnitName(code int) string         { return nameByCode(temperatureUnits, code) }
func LanguageCode(name string) (int, bool)        { return codeByName(languages, name) }
func LanguageName(code int) string                { return nameByCode(languages, code) }

// LanguageNames 支持的语言名称（有序）
func LanguageNames() []string {
	out := make([]string, 0, len(languages))
	for _, e := range languages {
		out = append(out, e.Name)
	}
	return out
}

var stopReasons = map[int]string{
	0:  "The reservation was stopped in advance by app",
	1:  "When the appointment time arrived, there was no rush",
	11: "App stop",
	12: "Card swiping stop",
	13: "Auto fill",
	14: "Fixed fee to",
	15: "Quantitative to",
	16: "Timed to",
	17: "Draw a gun",
	18: "End of power failure",
	19: "Fault, overcurrent",
	20: "Fault, short circuit",
	21: "Fault, main board over temperature",
	22: "Fault, over temperature of plug",
	23: "Fault, emergency stop pressed",
	24: "Key end",
	30: "Exceeding the maximum time of 48H",
	31: "Exceeding the maximum power of 400kwh",
	32: "Exceeding the maximum cost of 400 yuan",
}

var chargeStartErrors = map[int]string{
	0:  "No error",
	1:  "The charging plug is not plugged in properly",
	2:  "System error",
	3:  "Charging",
	4:  "System maintenance",
	5:  "Incorrect set fee",
	6:  "Incorrect set power consumption",
	7:  "Incorrect set time",
	8:  "Unknown reason",
	20: "Failed to start, already in reservation status",
}

var chargeStartReservations = map[int]string{
	0:  "No error",
	2:  "Reservation failed, the system does not support reservation",
	3:  "Reservation failed, the reservation time is more than 24 hours",
	4:  "Reservation failed, the reservation time is earlier than the current time",
	5:  "Reservation failed, system error",
	6:  "Reservation failed, already in reservation status",
	7:  "Reservation failed, already in charging status",
	8:  "Reservation failed, the fixed fee is incorrect",
	9:  "Reservation failed, the fixed power consumption is incorrect",
	10: "Reservation failed, the fixed time is incorrect",
}

func described(m map[int]string, code int) string {
	if s, ok := m[code]; ok {
		return s
	}
	return fmt.Sprintf("Unknown (%d)", code)
}

func StopReason(code int) string             { return described(stopReasons, code) }
func ChargeStartError(code int) string       { return described(chargeStartErrors, code) }
func ChargeStartReservation(code int) string { return described(chargeStartReservations, code) }
