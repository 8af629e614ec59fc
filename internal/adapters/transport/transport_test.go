package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAddress(t *testing.T) {
	cases := []struct {
		in         string
		dialTarget string
		device     string
	}{
		{"10.0.0.5/inst0", "10.0.0.5:5025", "inst0"},
		{"10.0.0.5:1234/inst0", "10.0.0.5:1234", "inst0"},
		{"10.0.0.5", "10.0.0.5:5025", ""},
	}
	for _, tc := range cases {
		dialTarget, device := ParseAddress(tc.in)
		assert.Equal(t, tc.dialTarget, dialTarget, tc.in)
		assert.Equal(t, tc.device, device, tc.in)
	}
}

func TestParseNumeric(t *testing.T) {
	cases := []struct {
		in    string
		want  float64
		ok    bool
	}{
		{"12.5", 12.5, true},
		{"  -3.2e-1 V\n", -0.32, true},
		{"+4", 4, true},
		{"no number here", 0, false},
		{"", 0, false},
		{"VAL:12.5V", 12.5, true},
	}
	for _, tc := range cases {
		got, ok := ParseNumeric(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.InDelta(t, tc.want, got, 1e-9, tc.in)
		}
	}
}
