package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kilianp07/sitepower/core/model"
)

var (
	// ErrValidation marks telemetry that is malformed or violates its schema.
	// Such messages are dropped and acknowledged.
	ErrValidation = errors.New("ingest: invalid message")
	// ErrUnknownMessageType marks a well-formed envelope with an unsupported
	// message_type. Such messages are dropped and acknowledged.
	ErrUnknownMessageType = errors.New("ingest: unknown message type")
)

const envelopeSchema = `{
  "type": "object",
  "required": ["message_type", "data"],
  "properties": {
    "message_type": {"type": "integer"},
    "data": {"type": "object"}
  }
}`

var payloadSchemas = map[model.MessageType]string{
	model.MessageVehicleRecognition: `{
  "type": "object",
  "required": ["session_id", "mac_addr", "max_voltage", "max_current", "max_power", "capacity"],
  "properties": {
    "session_id": {"type": "string", "minLength": 1},
    "mac_addr": {"type": "string", "minLength": 1},
    "site_no": {"type": "string"},
    "charger_sn": {"type": "string"},
    "max_voltage": {"type": "number", "minimum": 0},
    "max_current": {"type": "number", "minimum": 0},
    "max_power": {"type": "number", "minimum": 0},
    "capacity": {"type": "number", "exclusiveMinimum": 0}
  }
}`,
	model.MessagePowerTelemetry: `{
  "type": "object",
  "required": ["session_id", "site_no", "charger_sn", "soc", "power", "capacity"],
  "properties": {
    "session_id": {"type": "string", "minLength": 1},
    "site_no": {"type": "string", "minLength": 1},
    "charger_sn": {"type": "string", "minLength": 1},
    "mac_addr": {"type": "string"},
    "soc": {"type": "number", "minimum": 0, "maximum": 100},
    "power": {"type": "number"},
    "capacity": {"type": "number", "exclusiveMinimum": 0},
    "demand": {"type": "number", "minimum": 0}
  }
}`,
	model.MessagePlugStatus: `{
  "type": "object",
  "required": ["site_no", "charger_sn", "status"],
  "properties": {
    "site_no": {"type": "string", "minLength": 1},
    "charger_sn": {"type": "string", "minLength": 1},
    "status": {"type": "string", "minLength": 1},
    "plugged": {"type": "boolean"}
  }
}`,
}

// Decoder validates inbound envelopes and turns them into typed payloads.
type Decoder struct {
	envelope *jsonschema.Schema
	payloads map[model.MessageType]*jsonschema.Schema
}

func compile(name, src string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://sitepower.schemas.local/telemetry/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("schema %s load failed: %w", name, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s compile failed: %w", name, err)
	}
	return s, nil
}

// NewDecoder compiles the envelope and payload schemas.
func NewDecoder() (*Decoder, error) {
	env, err := compile("envelope", envelopeSchema)
	if err != nil {
		return nil, err
	}
	d := &Decoder{envelope: env, payloads: make(map[model.MessageType]*jsonschema.Schema, len(payloadSchemas))}
	for t, src := range payloadSchemas {
		s, err := compile(t.String(), src)
		if err != nil {
			return nil, err
		}
		d.payloads[t] = s
	}
	return d, nil
}

type envelope struct {
	MessageType model.MessageType `json:"message_type"`
	Data        json.RawMessage   `json:"data"`
}

// Decode validates raw and returns the typed payload. The message type is
// returned whenever the envelope itself could be read, even on error.
func (d *Decoder) Decode(raw []byte) (model.Payload, model.MessageType, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := d.envelope.Validate(doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	schema, ok := d.payloads[env.MessageType]
	if !ok {
		return nil, env.MessageType, fmt.Errorf("%w: %d", ErrUnknownMessageType, int(env.MessageType))
	}
	data := doc.(map[string]any)["data"]
	if err := schema.Validate(data); err != nil {
		return nil, env.MessageType, fmt.Errorf("%w: %s: %v", ErrValidation, env.MessageType, err)
	}

	var p model.Payload
	switch env.MessageType {
	case model.MessageVehicleRecognition:
		var v model.VehicleData
		err = json.Unmarshal(env.Data, &v)
		p = v
	case model.MessagePowerTelemetry:
		var v model.PowerData
		err = json.Unmarshal(env.Data, &v)
		p = v
	case model.MessagePlugStatus:
		var v model.PlugStatus
		err = json.Unmarshal(env.Data, &v)
		p = v
	}
	if err != nil {
		return nil, env.MessageType, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return p, env.MessageType, nil
}
