package models

import "time"

// Unknown replaces any status field the device could not report.
const Unknown = "unknown"

// DeviceStatus is the last polled view of the circulator.
// Temperatures are kept as the device reported them.
type DeviceStatus struct {
	CurrentTemp string    `json:"current_temp"`
	SetTemp     string    `json:"set_temp"`
	Unit        string    `json:"unit"`
	State       string    `json:"state"` // running | stopped | unknown
	LinkOpen    bool      `json:"link_open"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UnknownStatus returns a status with every device field set to Unknown.
func UnknownStatus(at time.Time) DeviceStatus {
	return DeviceStatus{
		CurrentTemp: Unknown,
		SetTemp:     Unknown,
		Unit:        Unknown,
		State:       Unknown,
		UpdatedAt:   at,
	}
}

// TemperatureReading is the answer to a live temperature query.
type TemperatureReading struct {
	CurrentTemp float64 `json:"current_temp"`
	SetTemp     float64 `json:"set_temp"`
	Unit        string  `json:"unit"`
}
