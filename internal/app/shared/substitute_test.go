package shared

import (
	"testing"

	"github.com/kbralten/vxi-dash/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute(t *testing.T) {
	out, err := Substitute("FREQ {freq}HZ;AMPL {ampl}V", 1, "run", map[string]string{"freq": "1000", "ampl": "2.5"})
	require.NoError(t, err)
	assert.Equal(t, "FREQ 1000HZ;AMPL 2.5V", out)
}

func TestSubstitute_MissingParameter(t *testing.T) {
	_, err := Substitute("FREQ {freq}HZ", 1, "run", map[string]string{})
	require.Error(t, err)

	var pmErr *domain.ParameterMissingError
	require.ErrorAs(t, err, &pmErr)
	assert.Equal(t, "freq", pmErr.Parameter)
	assert.Equal(t, "run", pmErr.ModeID)
}

func TestSubstitute_NoPlaceholders(t *testing.T) {
	out, err := Substitute("OUTP ON", 1, "run", nil)
	require.NoError(t, err)
	assert.Equal(t, "OUTP ON", out)
}

func TestModeOverrides_SetGetClear(t *testing.T) {
	m := NewModeOverrides()
	if _, ok := m.Get(1, 2); ok {
		t.Fatal("expected no override before Set")
	}

	m.Set(1, 2, ModeSetting{ModeID: "run", ModeParams: map[string]string{"freq": "1000"}})
	setting, ok := m.Get(1, 2)
	if !ok || setting.ModeID != "run" {
		t.Fatalf("expected override run, got %+v ok=%v", setting, ok)
	}

	m.Clear(1)
	if _, ok := m.Get(1, 2); ok {
		t.Fatal("expected override cleared")
	}
}
