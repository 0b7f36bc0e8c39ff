// Package trim restricts a data package to a date range.
package trim

import (
	"time"

	"github.com/ipni/go-freshcache/model"
)

// Package returns a copy of p that keeps only the days that fall within
// [start, end], with the total statistics recomputed from those days. A zero
// start or end leaves that side of the range open. The input is not modified.
func Package(p *model.Package, start, end time.Time) *model.Package {
	if p == nil {
		return nil
	}
	if p.Contribs == nil {
		return &model.Package{}
	}

	var startDate, endDate string
	if !start.IsZero() {
		startDate = start.Format(model.DateLayout)
	}
	if !end.IsZero() {
		endDate = end.Format(model.DateLayout)
	}

	out := &model.Contribs{}
	for _, day := range p.Contribs.Days {
		// Dates in layout order compare lexically.
		if startDate != "" && day.Date < startDate {
			continue
		}
		if endDate != "" && day.Date > endDate {
			continue
		}
		kept := model.Day{Date: day.Date}
		kept.Stats.Add(day.Stats)
		out.Days = append(out.Days, kept)
		out.TotalStats.Add(day.Stats)
	}
	return &model.Package{Contribs: out}
}
