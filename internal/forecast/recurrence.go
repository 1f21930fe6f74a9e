package forecast

import (
	"time"

	"prevision/internal/core"
)

// LastDayOfMonth returns the number of days in the given month.
func LastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Resolve produces the concrete occurrence of a recurring template for a
// target month, or ok=false when the template does not apply there.
//
// A template applies when it is active, its start date is not after the
// first day of the target month, and its end date (when set) is not
// before that first day. The day of month is clamped to the target
// month's length, so a day-31 template still lands in February.
func Resolve(t core.RecurringTemplate, year int, month time.Month) (core.Occurrence, bool) {
	if !t.Active {
		return core.Occurrence{}, false
	}

	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	if t.StartDate.After(firstOfMonth) {
		return core.Occurrence{}, false
	}
	if !t.EndDate.IsEmpty() && t.EndDate.Before(firstOfMonth) {
		return core.Occurrence{}, false
	}

	day := t.DayOfMonth
	if last := LastDayOfMonth(year, month); day > last {
		day = last
	}

	return core.Occurrence{
		TemplateID: t.ID,
		Label:      t.Label,
		Amount:     t.Amount,
		Category:   t.Category,
		Sharing:    t.Sharing,
		Date:       core.NewDate(year, int(month), day),
	}, true
}

// ResolveAll resolves every template against the target month, dropping
// the ones that do not apply.
func ResolveAll(templates []core.RecurringTemplate, year int, month time.Month) []core.Occurrence {
	var out []core.Occurrence
	for _, t := range templates {
		if occ, ok := Resolve(t, year, month); ok {
			out = append(out, occ)
		}
	}
	return out
}
