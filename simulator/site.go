// Package simulator drives a fake charging site over the telemetry bus. It
// plugs vehicles into connectors, reports their power and state of charge,
// and caps each connector at the last profile received for it.
package simulator

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/sitepower/core/model"
)

// Message is one outbound telemetry record.
type Message struct {
	Topic   string
	Payload []byte
}

type session struct {
	id      string
	mac     string
	battery *Battery
	limit   float64
}

// Site simulates the connectors of one site.
type Site struct {
	cfg      Config
	mu       sync.Mutex
	rng      *rand.Rand
	chargers []string
	sessions map[string]*session
	steps    int
}

// NewSite creates a site with cfg.Connectors empty connectors named
// <site>-C<n>. cfg must be valid.
func NewSite(cfg Config) *Site {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Site{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(seed)),
		sessions: make(map[string]*session),
	}
	for i := 1; i <= cfg.Connectors; i++ {
		s.chargers = append(s.chargers, fmt.Sprintf("%s-C%d", cfg.SiteNo, i))
	}
	return s
}

// Chargers returns the connector serial numbers in order.
func (s *Site) Chargers() []string {
	return append([]string(nil), s.chargers...)
}

// Demand returns the demand target for the current step.
func (s *Site) Demand() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.demand()
}

func (s *Site) demand() float64 {
	if len(s.cfg.Demand) == 0 {
		return 0
	}
	return s.cfg.Demand[(s.steps/s.cfg.DemandEvery)%len(s.cfg.Demand)]
}

// ApplyProfile caps the connector at p.Power until the next profile. Unknown
// or idle connectors are ignored.
func (s *Site) ApplyProfile(p model.PowerProfile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[p.ChargerSN]
	if !ok {
		return false
	}
	sess.limit = math.Max(p.Power, 0)
	return true
}

// Limit returns the current cap of a connector and whether a vehicle is
// plugged in.
func (s *Site) Limit(chargerSN string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chargerSN]
	if !ok {
		return 0, false
	}
	return sess.limit, true
}

// Step advances the simulation by dt and returns the messages to publish.
// An empty connector gets a new vehicle, which is announced with a plug
// status and a recognition message. A charging connector may fault with
// cfg.FaultRate and otherwise reports power telemetry; a full battery is
// unplugged.
func (s *Site) Step(dt time.Duration) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	demand := s.demand()
	var out []Message
	add := func(topic string, p model.Payload) error {
		b, err := encode(p)
		if err != nil {
			return err
		}
		out = append(out, Message{Topic: topic, Payload: b})
		return nil
	}

	for _, sn := range s.chargers {
		sess, ok := s.sessions[sn]
		if !ok {
			sess = s.plugIn(sn)
			if err := add(s.cfg.Topics.PlugStatus, model.PlugStatus{SiteNo: s.cfg.SiteNo, ChargerSN: sn, Status: string(model.StatusCharging), Plugged: true}); err != nil {
				return nil, err
			}
			if err := add(s.cfg.Topics.VehicleRecognition, model.VehicleData{
				SessionID:  sess.id,
				MacAddr:    sess.mac,
				SiteNo:     s.cfg.SiteNo,
				ChargerSN:  sn,
				MaxVoltage: 400,
				MaxCurrent: s.cfg.MaxPowerKW * 1000 / 400,
				MaxPower:   s.cfg.MaxPowerKW,
				Capacity:   sess.battery.CapacityKWh,
			}); err != nil {
				return nil, err
			}
			continue
		}

		if s.cfg.FaultRate > 0 && s.rng.Float64() < s.cfg.FaultRate {
			delete(s.sessions, sn)
			if err := add(s.cfg.Topics.PlugStatus, model.PlugStatus{SiteNo: s.cfg.SiteNo, ChargerSN: sn, Status: string(model.StatusError), Plugged: true}); err != nil {
				return nil, err
			}
			continue
		}

		power := sess.battery.Charge(sess.limit, dt)
		d := demand
		if err := add(s.cfg.Topics.PowerTelemetry, model.PowerData{
			SessionID: sess.id,
			SiteNo:    s.cfg.SiteNo,
			ChargerSN: sn,
			MacAddr:   sess.mac,
			SOC:       round(sess.battery.SOC),
			Power:     round(power),
			Capacity:  sess.battery.CapacityKWh,
			Demand:    &d,
		}); err != nil {
			return nil, err
		}
		if sess.battery.Full() {
			delete(s.sessions, sn)
			if err := add(s.cfg.Topics.PlugStatus, model.PlugStatus{SiteNo: s.cfg.SiteNo, ChargerSN: sn, Status: string(model.StatusIdle)}); err != nil {
				return nil, err
			}
		}
	}
	s.steps++
	return out, nil
}

func (s *Site) plugIn(sn string) *session {
	mac := make([]byte, 6)
	s.rng.Read(mac)
	sess := &session{
		id:  uuid.NewString(),
		mac: fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5]),
		battery: &Battery{
			CapacityKWh:  s.cfg.CapacityKWh,
			SOC:          10 + s.rng.Float64()*50,
			ChargeRateKW: s.cfg.MaxPowerKW,
		},
		limit: s.cfg.MaxPowerKW,
	}
	s.sessions[sn] = sess
	return sess
}

type envelope struct {
	MessageType model.MessageType `json:"message_type"`
	Data        model.Payload     `json:"data"`
}

func encode(p model.Payload) ([]byte, error) {
	return json.Marshal(envelope{MessageType: p.MessageType(), Data: p})
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
