package discovery

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Window is an inclusive range of creation dates, both ends at UTC midnight.
type Window struct {
	From time.Time
	To   time.Time
}

// Windows partitions [start, end) into consecutive windows of stepDays days.
// The last window may reach past end.
func Windows(start, end time.Time, stepDays int) []Window {
	if stepDays < 1 {
		stepDays = 1
	}
	var out []Window
	for cur := day(start); cur.Before(end); cur = cur.AddDate(0, 0, stepDays) {
		out = append(out, Window{From: cur, To: cur.AddDate(0, 0, stepDays-1)})
	}
	return out
}

// Query renders the search qualifier for this window, newest activity first.
func (w Window) Query() string {
	return fmt.Sprintf("created:%s..%s sort:updated", w.From.Format(dateLayout), w.To.Format(dateLayout))
}

// Days is the number of calendar days covered.
func (w Window) Days() int {
	return int(w.To.Sub(w.From).Hours()/24) + 1
}

// Split halves a window. Single-day windows cannot be split.
func (w Window) Split() ([]Window, bool) {
	days := w.Days()
	if days <= 1 {
		return nil, false
	}
	mid := w.From.AddDate(0, 0, days/2-1)
	return []Window{
		{From: w.From, To: mid},
		{From: mid.AddDate(0, 0, 1), To: w.To},
	}, true
}

func (w Window) String() string {
	return w.From.Format(dateLayout) + ".." + w.To.Format(dateLayout)
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
