package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name    string
		seconds int
		want    string
	}{
		{"zero", 0, "00:00"},
		{"just over a minute", 65, "01:05"},
		{"two minutes five", 125, "02:05"},
		{"one hour keeps minutes", 3600, "60:00"},
		{"negative clamps to zero", -5, "00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.seconds))
		})
	}
}
