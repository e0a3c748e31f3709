package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/core/model"
	"github.com/kilianp07/sitepower/infra/logger"
)

type fakeJS struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeJS) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return &nats.PubAck{Stream: "SITEPOWER", Sequence: uint64(len(f.payloads))}, nil
}

func TestPublishProfile(t *testing.T) {
	js := &fakeJS{}
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &Publisher{js: js, subject: "power_allocation", logger: logger.NopLogger{}, now: func() time.Time { return ts }}

	require.NoError(t, p.PublishProfile(context.Background(), model.PowerProfile{ChargerSN: "C1", Power: 11}))
	require.Equal(t, []string{"power_allocation"}, js.subjects)
	var msg bus.ProfileMessage
	require.NoError(t, json.Unmarshal(js.payloads[0], &msg))
	assert.Equal(t, "C1", msg.Profile.ChargerSN)
	assert.Equal(t, bus.ProfileVersion, msg.Version)
}

func TestPublishProfile_Error(t *testing.T) {
	p := &Publisher{js: &fakeJS{err: nats.ErrNoStreamResponse}, subject: "x", logger: logger.NopLogger{}, now: time.Now}
	err := p.PublishProfile(context.Background(), model.PowerProfile{ChargerSN: "C1"})
	assert.True(t, errors.Is(err, nats.ErrNoStreamResponse))
}

func TestProfileID(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := profileID(model.PowerProfile{ChargerSN: "C1", Power: 11, Timestamp: ts})
	assert.Equal(t, a, profileID(model.PowerProfile{ChargerSN: "C1", Power: 11, Timestamp: ts}))
	assert.NotEqual(t, a, profileID(model.PowerProfile{ChargerSN: "C2", Power: 11, Timestamp: ts}))
	assert.NotEqual(t, a, profileID(model.PowerProfile{ChargerSN: "C1", Power: 11, Timestamp: ts.Add(time.Second)}))
	assert.Empty(t, profileID(model.PowerProfile{ChargerSN: "C1"}))
}
