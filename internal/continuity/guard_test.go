package continuity

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingPinger struct {
	pings atomic.Int32
}

func (p *countingPinger) Ping() error {
	p.pings.Add(1)
	return nil
}

func TestIsMobile(t *testing.T) {
	tests := []struct {
		ua   string
		want bool
	}{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", true},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8)", true},
		{"Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X)", true},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", false},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsMobile(tt.ua), tt.ua)
	}
}

func TestStartCallNoopOnDesktop(t *testing.T) {
	g := NewGuard()
	p := &countingPinger{}

	release := g.StartCall("Mozilla/5.0 (Windows NT 10.0)", p, nil)
	assert.NotNil(t, release)

	// Visibility changes while unguarded must not ping
	g.Visibility(true)
	assert.Equal(t, int32(0), p.pings.Load())

	release()
	release() // idempotent
}

func TestVisibilityResumesOnForeground(t *testing.T) {
	g := NewGuard()
	p := &countingPinger{}

	var resumed atomic.Int32
	release := g.StartCall("Mozilla/5.0 (iPhone)", p, func() error {
		resumed.Add(1)
		return nil
	})
	defer release()

	g.Visibility(false)
	assert.Equal(t, int32(0), resumed.Load(), "backgrounding must not resume")

	g.Visibility(true)
	assert.Equal(t, int32(1), resumed.Load())
	assert.Equal(t, int32(1), p.pings.Load(), "foreground triggers an immediate keepalive")
}

func TestReleaseStopsGuard(t *testing.T) {
	g := NewGuard()
	p := &countingPinger{}

	release := g.StartCall("Mozilla/5.0 (Android 14)", p, nil)
	release()
	release()

	g.Visibility(true)
	assert.Equal(t, int32(0), p.pings.Load(), "released guard ignores visibility")
}
