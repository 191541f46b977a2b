package feature

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVarsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vars.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadVarSpec(t *testing.T) {
	path := writeVarsFile(t, `
rates:
  - name: RADIO_PR
    count: RADIO
    per: TT_HOUSEHOLDS
    scale: 1000
  - name: TV_PR
    count: TV
    per: TT_HOUSEHOLDS
    scale: 1000
keep: [RADIO_PR, TV_PR]
`)

	spec, err := LoadVarSpec(path)
	require.NoError(t, err)
	require.Len(t, spec.Rates, 2)
	assert.Equal(t, "RADIO_PR", spec.Rates[0].Name)
	assert.Equal(t, 1000.0, spec.Rates[0].Scale)
	assert.Equal(t, []string{"RADIO_PR", "TV_PR"}, spec.Keep)
}

func TestLoadVarSpecUnknownField(t *testing.T) {
	path := writeVarsFile(t, `
rates: []
kep: [TYPO]
`)
	_, err := LoadVarSpec(path)
	require.Error(t, err)
}

func TestVarSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    VarSpec
		wantErr string
	}{
		{"empty ok", VarSpec{}, ""},
		{"missing name", VarSpec{Rates: []RateSpec{{Count: "A", Per: "B", Scale: 1}}}, "no name"},
		{"duplicate name", VarSpec{Rates: []RateSpec{
			{Name: "R", Count: "A", Per: "B", Scale: 1},
			{Name: "R", Count: "C", Per: "D", Scale: 1},
		}}, "duplicate rate name"},
		{"missing columns", VarSpec{Rates: []RateSpec{{Name: "R", Scale: 1}}}, "needs both"},
		{"zero scale", VarSpec{Rates: []RateSpec{{Name: "R", Count: "A", Per: "B"}}}, "scale must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
