// Package timefmt renders reminder due times for people.
package timefmt

import (
	"time"

	"github.com/nleeper/goment"
)

// Layout matches the date/time picker label: day/month/year hour:minute.
const Layout = "DD/MM/YYYY HH:mm"

// Format renders epoch milliseconds in loc using Layout.
func Format(ms int64, loc *time.Location) string {
	return FormatTime(time.UnixMilli(ms), loc)
}

// FormatTime renders t in loc using Layout.
func FormatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	g, err := goment.New(t.In(loc))
	if err != nil {
		return t.In(loc).Format("02/01/2006 15:04")
	}
	return g.Format(Layout)
}

// Long renders a longer form for detail views, e.g. "14th October 2026 at 09:30".
func Long(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t := time.UnixMilli(ms).In(loc)
	g, err := goment.New(t)
	if err != nil {
		return t.Format("2 January 2006 at 15:04")
	}
	return g.Format("Do MMMM YYYY") + " at " + g.Format("HH:mm")
}
