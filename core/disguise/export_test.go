package disguise

import "time"

// SetNow replaces the clock of the session reveal store until restore is called.
func SetNow(now func() time.Time) (restore func()) {
	orig := nowFunc
	nowFunc = now
	return func() { nowFunc = orig }
}
