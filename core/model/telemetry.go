package model

import (
	"fmt"
	"time"
)

// MessageType is the discriminant of an inbound telemetry envelope.
type MessageType int

const (
	MessageVehicleRecognition MessageType = 1
	MessagePowerTelemetry     MessageType = 2
	MessagePlugStatus         MessageType = 3
)

func (t MessageType) String() string {
	switch t {
	case MessageVehicleRecognition:
		return "vehicle_recognition"
	case MessagePowerTelemetry:
		return "power_telemetry"
	case MessagePlugStatus:
		return "plug_status"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Payload is implemented by every typed telemetry variant.
type Payload interface {
	MessageType() MessageType
}

// VehicleData carries the electrical characteristics reported when a vehicle
// is plugged in, used to recognise its model.
type VehicleData struct {
	SessionID  string  `json:"session_id"`
	MacAddr    string  `json:"mac_addr"`
	SiteNo     string  `json:"site_no,omitempty"`
	ChargerSN  string  `json:"charger_sn,omitempty"`
	MaxVoltage float64 `json:"max_voltage"`
	MaxCurrent float64 `json:"max_current"`
	MaxPower   float64 `json:"max_power"`
	Capacity   float64 `json:"capacity"`
}

func (VehicleData) MessageType() MessageType { return MessageVehicleRecognition }

// PowerData is periodic power and state-of-charge telemetry for a session.
// Demand is set when the reporting side also carries the site demand target.
type PowerData struct {
	SessionID string   `json:"session_id"`
	SiteNo    string   `json:"site_no"`
	ChargerSN string   `json:"charger_sn"`
	MacAddr   string   `json:"mac_addr,omitempty"`
	SOC       float64  `json:"soc"`
	Power     float64  `json:"power"`
	Capacity  float64  `json:"capacity"`
	Demand    *float64 `json:"demand,omitempty"`
}

func (PowerData) MessageType() MessageType { return MessagePowerTelemetry }

// PlugStatus reports a plug or connector state change.
type PlugStatus struct {
	SiteNo    string `json:"site_no"`
	ChargerSN string `json:"charger_sn"`
	Status    string `json:"status"`
	Plugged   bool   `json:"plugged"`
}

func (PlugStatus) MessageType() MessageType { return MessagePlugStatus }

// VehicleModel is the stored outcome of a vehicle recognition.
type VehicleModel struct {
	SessionID  string    `json:"session_id"`
	MacAddr    string    `json:"mac_addr"`
	ChargerSN  string    `json:"charger_sn,omitempty"`
	Capacity   float64   `json:"capacity"`
	MaxVoltage float64   `json:"max_voltage"`
	MaxCurrent float64   `json:"max_current"`
	MaxPower   float64   `json:"max_power"`
	Model      string    `json:"model"`
	ReportedAt time.Time `json:"reported_at"`
}

// PredictionResult is the projected power at one state-of-charge checkpoint.
// TimeToTarget is expressed in hours.
type PredictionResult struct {
	TargetSOC      float64 `json:"target_soc"`
	TimeToTarget   float64 `json:"time_to_target"`
	PredictedPower float64 `json:"predicted_power"`
}

// PredictionRecord groups the results computed for one telemetry sample.
type PredictionRecord struct {
	SessionID string             `json:"session_id"`
	SiteNo    string             `json:"site_no"`
	ChargerSN string             `json:"charger_sn"`
	MacAddr   string             `json:"mac_addr,omitempty"`
	SOC       float64            `json:"soc"`
	Power     float64            `json:"power"`
	Results   []PredictionResult `json:"results"`
	CreatedAt time.Time          `json:"created_at"`
}
