package device

import (
	"context"
	"fmt"
	"time"

	"github.com/bamsammich/psplink/internal/proto"
)

// Battery is a battery reading. Level is -1 and TimeRemaining is negative
// when the console cannot tell.
type Battery struct {
	Level         int
	Charging      bool
	TimeRemaining time.Duration
}

// Status renders the reading, e.g. "72%, charging" or "40%, 2h10m remaining".
func (b Battery) Status() string {
	if b.Level < 0 {
		if b.Charging {
			return "charging"
		}
		return "unknown"
	}
	switch {
	case b.Charging:
		return fmt.Sprintf("%d%%, charging", b.Level)
	case b.TimeRemaining >= 0:
		return fmt.Sprintf("%d%%, %s remaining", b.Level, formatMinutes(b.TimeRemaining))
	default:
		return fmt.Sprintf("%d%%", b.Level)
	}
}

func formatMinutes(d time.Duration) string {
	m := int(d.Minutes())
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", m/60, m%60)
}

func batteryFrom(r proto.BatteryInfo) Battery {
	b := Battery{Level: -1, Charging: r.Charging, TimeRemaining: -1}
	if r.Level != proto.BatteryLevelUnknown {
		b.Level = min(int(r.Level), 100)
	}
	if r.Minutes != proto.BatteryMinutesUnknown {
		b.TimeRemaining = time.Duration(r.Minutes) * time.Minute
	}
	return b
}

// Battery queries the battery. A discharging battery at or below the
// LowBattery threshold notifies observers.
func (d *Device) Battery(ctx context.Context) (Battery, error) {
	var r proto.BatteryInfo
	err := d.do(ctx, func() error {
		var err error
		r, err = d.proto.Battery(ctx)
		return err
	})
	if err != nil {
		return Battery{}, err
	}
	b := batteryFrom(r)
	if b.Level >= 0 && !b.Charging && b.Level <= d.cfg.LowBattery {
		d.notify(StatusLowBattery, b.Status())
	}
	return b, nil
}
