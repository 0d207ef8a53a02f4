package watch

import (
	"strings"
	"time"
)

// Ticker alternates frames on every clock tick. A frozen ticker means the
// TUI itself has stalled.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"⟲", "⟳"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

const activityDots = 5

// Activity lights up when an event arrives and fades over ten seconds.
type Activity struct {
	dots      int
	lastEvent time.Time
}

func (a *Activity) OnEvent(at time.Time) {
	a.dots = activityDots
	a.lastEvent = at
}

// Decay drops one dot for every two seconds without an event.
func (a *Activity) Decay(now time.Time) {
	if a.dots == 0 {
		return
	}
	idle := int(now.Sub(a.lastEvent) / (2 * time.Second))
	a.dots = max(activityDots-idle, 0)
}

func (a Activity) Render(theme Theme) string {
	var b strings.Builder
	for i := range activityDots {
		if i < a.dots {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}

func (a Activity) LastEvent() time.Time {
	return a.lastEvent
}
