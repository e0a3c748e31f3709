package scenarios

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		sc, err := Load(f)
		require.NoError(t, err, f)
		t.Run(sc.Name, func(t *testing.T) {
			res, err := Run(sc)
			assert.NoError(t, Verify(sc, res, err))
		})
	}
}

func TestVerify_ReportsMismatch(t *testing.T) {
	sc := &Scenario{
		Name:       "wrong",
		Demand:     50,
		Connectors: []ConnectorDef{{ChargerSN: "C1", Power: 60}},
		Expected:   Expected{Adjusted: 0, Profile: map[string]float64{"C1": 60}},
	}
	res, err := Run(sc)
	vErr := Verify(sc, res, err)
	require.Error(t, vErr)
	assert.Contains(t, vErr.Error(), "adjusted")
	assert.Contains(t, vErr.Error(), "C1")
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	noName := filepath.Join(dir, "noname.yaml")
	require.NoError(t, os.WriteFile(noName, []byte("demand: 10\n"), 0o644))
	_, err := Load(noName)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
