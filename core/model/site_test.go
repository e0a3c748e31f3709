package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnectorStatus(t *testing.T) {
	st, err := ParseConnectorStatus(" error ")
	require.NoError(t, err)
	assert.Equal(t, StatusError, st)

	_, err = ParseConnectorStatus("unplugged")
	assert.Error(t, err)
}

func TestTotalPower(t *testing.T) {
	cs := []ConnectorState{{ChargerSN: "A", CurrentPower: 100}, {ChargerSN: "B", CurrentPower: 60}}
	assert.InDelta(t, 160, TotalPower(cs), 1e-9)
	assert.Zero(t, TotalPower(nil))
}

func TestSiteValidate(t *testing.T) {
	assert.Error(t, Site{}.Validate())
	assert.Error(t, Site{SiteNo: "S1", Demand: -1}.Validate())
	assert.NoError(t, Site{SiteNo: "S1", TotalPowerLimit: 200, Demand: 150}.Validate())
}

func TestAlertTypeSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, AlertPowerExceed.Severity())
	assert.Equal(t, SeverityWarning, AlertDemandExceed.Severity())
	assert.Equal(t, SeverityCritical, AlertChargerError.Severity())
	assert.Equal(t, SeverityWarning, AlertChargerPowerExceed.Severity())
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "power_telemetry", MessagePowerTelemetry.String())
	assert.Equal(t, "unknown(9)", MessageType(9).String())
}
