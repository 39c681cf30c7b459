// Package continuity keeps a mobile caller's audio path alive across
// background/foreground transitions. Mobile platforms suspend idle network
// and audio when the screen locks; the guard counters that with a periodic
// keepalive while a call is active and a resume nudge when the client reports
// returning to the foreground.
//
// Everything here is best effort: failures are logged and never propagate,
// and the guard must never block or fail the call flow.
package continuity

import (
	"strings"
	"sync"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/pkg/logger"
	"go.uber.org/zap"
)

const keepaliveInterval = 15 * time.Second

// Pinger touches the transport so the platform keeps it awake
type Pinger interface {
	Ping() error
}

// Guard manages the continuity state for one call flow. At most one call is
// guarded at a time, matching the single active CallSession.
type Guard struct {
	mu     sync.Mutex
	active *callGuard
}

type callGuard struct {
	pinger Pinger
	resume func() error
	stop   chan struct{}
	once   sync.Once
}

// NewGuard creates an inactive guard
func NewGuard() *Guard {
	return &Guard{}
}

// StartCall arms the guard for the duration of a call and returns a cleanup
// function. On non-mobile user agents both the guard and the cleanup are
// no-ops. The resume callback is invoked when the client comes back to the
// foreground; it may be nil.
func (g *Guard) StartCall(userAgent string, pinger Pinger, resume func() error) (release func()) {
	if !IsMobile(userAgent) {
		return func() {}
	}

	cg := &callGuard{
		pinger: pinger,
		resume: resume,
		stop:   make(chan struct{}),
	}

	g.mu.Lock()
	if g.active != nil {
		g.active.release()
	}
	g.active = cg
	g.mu.Unlock()

	go cg.keepaliveLoop()
	logger.Base().Info("mobile continuity guard armed")

	return func() {
		cg.release()
		g.mu.Lock()
		if g.active == cg {
			g.active = nil
		}
		g.mu.Unlock()
	}
}

// Visibility reports a page visibility change from the client. Returning to
// the foreground re-runs the resume callback and the keepalive immediately.
func (g *Guard) Visibility(visible bool) {
	g.mu.Lock()
	cg := g.active
	g.mu.Unlock()

	if cg == nil || !visible {
		return
	}

	if cg.resume != nil {
		if err := cg.resume(); err != nil {
			logger.Base().Warn("failed to resume audio on foreground", zap.Error(err))
		}
	}
	cg.pingOnce()
}

func (cg *callGuard) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cg.stop:
			return
		case <-ticker.C:
			cg.pingOnce()
		}
	}
}

func (cg *callGuard) pingOnce() {
	if cg.pinger == nil {
		return
	}
	if err := cg.pinger.Ping(); err != nil {
		logger.Base().Warn("continuity keepalive ping failed", zap.Error(err))
	}
}

// release is idempotent; the guard is torn down on every call exit path
func (cg *callGuard) release() {
	cg.once.Do(func() {
		close(cg.stop)
		logger.Base().Info("mobile continuity guard released")
	})
}

// IsMobile detects mobile user agents the same way browser widgets do: a
// substring check, deliberately loose.
func IsMobile(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, marker := range []string{"android", "iphone", "ipad", "ipod", "mobile"} {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
