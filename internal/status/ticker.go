package status

import (
	"context"
	"time"

	"smartclim/internal/db"
	"smartclim/internal/gps"
	"smartclim/internal/smartclim"
	"smartclim/internal/util"
)

const gpsSilentAfter = 30 * time.Second

// Provider holds whatever the status line can report on. Nil members are
// skipped.
type Provider struct {
	GPS      *gps.State
	Store    *db.Store
	Sessions func() []*smartclim.Session
	// Stale marks sensors whose last reading is older than this.
	Stale time.Duration
	now   func() time.Time
}

// Run prints periodic structured status lines to the console.
func Run(ctx context.Context, interval time.Duration, p Provider) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			printOnce(ctx, p)
		}
	}
}

func printOnce(ctx context.Context, p Provider) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}

	// GPS
	if p.GPS != nil {
		gpsLine := "no fix"
		if s := p.GPS.GPSStringForRecord(); s != nil {
			gpsLine = *s
		}
		if !p.GPS.HasRecentPacket(gpsSilentAfter) {
			gpsLine += ", receiver silent"
		}
		util.Linef("[GPS DATA]", util.ColorCyan, "%s", gpsLine)
	}

	// DB stats
	if p.Store != nil {
		st, err := p.Store.GetStatistics(ctx)
		if err == nil {
			util.Linef("[DB STATS]", util.ColorGray, "Devices: %d, Named: %d, Readings: %d, Sessions: %d",
				st.Devices, st.NamedDevices, st.Readings, st.Sessions)
		}
	}

	if p.Sessions == nil {
		return
	}
	for _, s := range p.Sessions() {
		name := util.SafeName(s.Name())
		r, ok := s.Reading()
		if !ok {
			util.Linef("[SENSOR]", util.ColorYellow, "%s (%s) waiting for first reading", name, s.Address())
			continue
		}
		age := now().Sub(s.LastReadAt()).Truncate(time.Second)
		color := util.ColorGray
		if p.Stale > 0 && age > p.Stale {
			color = util.ColorYellow
		}
		util.Linef("[SENSOR]", color, "%s (%s) %s, %s ago", name, s.Address(), r, age)
	}
}
