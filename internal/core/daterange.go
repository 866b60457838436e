package core

import (
	"fmt"
	"time"
)

const (
	PresetCurrentYear = "current-year"
	PresetLastYear    = "last-year"
	PresetLast3Months = "last-3"
	PresetAll         = "all"
	PresetCustom      = "custom"
)

const periodMonths = 12

var (
	monthNames = [12]string{
		"janeiro", "fevereiro", "março", "abril", "maio", "junho",
		"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
	}
	monthShort = [12]string{
		"jan", "fev", "mar", "abr", "mai", "jun",
		"jul", "ago", "set", "out", "nov", "dez",
	}
)

type (
	// DateRange is an inclusive range of civil days. A nil bound leaves
	// that side open.
	DateRange struct {
		Start *Date `json:"start"`
		End   *Date `json:"end"`
	}

	// RangeState is the selected range and the period it was resolved from.
	RangeState struct {
		Period string    `json:"period"`
		Range  DateRange `json:"range"`
	}

	PeriodOption struct {
		Value string `json:"value"`
		Label string `json:"label"`
	}
)

// MonthName returns the pt-BR month name, 1-based.
func MonthName(month int) string {
	return monthNames[month-1]
}

// MonthShort returns the abbreviated pt-BR month name, 1-based.
func MonthShort(month int) string {
	return monthShort[month-1]
}

func NewRange(start, end Date) DateRange {
	return DateRange{Start: &start, End: &end}
}

// Bounded reports whether both bounds are present.
func (r DateRange) Bounded() bool {
	return r.Start != nil && r.End != nil
}

// Inverted reports a range whose start is after its end. It contains nothing.
func (r DateRange) Inverted() bool {
	return r.Bounded() && r.Start.After(*r.End)
}

func (r DateRange) Contains(d Date) bool {
	if r.Start != nil && d.Before(*r.Start) {
		return false
	}
	if r.End != nil && d.After(*r.End) {
		return false
	}
	return true
}

// Key identifies the range in cache keys and logs.
func (r DateRange) Key() string {
	bound := func(d *Date) string {
		if d == nil {
			return "*"
		}
		return d.String()
	}
	return bound(r.Start) + ".." + bound(r.End)
}

func (r DateRange) String() string {
	return r.Key()
}

func StartOfMonth(year, month int) Date {
	return NewDate(year, month, 1)
}

// EndOfMonth returns the last day of the month, normalising month overflow.
func EndOfMonth(year, month int) Date {
	return NewDate(year, month+1, 0)
}

func YearRange(year int) DateRange {
	return NewRange(NewDate(year, 1, 1), NewDate(year, 12, 31))
}

func MonthRange(year, month int) DateRange {
	return NewRange(StartOfMonth(year, month), EndOfMonth(year, month))
}

// CurrentMonth is the range shown before the user picks anything.
func CurrentMonth(now time.Time) DateRange {
	return MonthRange(now.Year(), int(now.Month()))
}

// ResolvePreset turns a period selector into a range. An empty preset
// resolves to the current month.
func ResolvePreset(preset string, now time.Time) (DateRange, error) {
	year, month := now.Year(), int(now.Month())
	switch preset {
	case "":
		return CurrentMonth(now), nil
	case PresetCurrentYear:
		return YearRange(year), nil
	case PresetLastYear:
		return YearRange(year - 1), nil
	case PresetLast3Months:
		return NewRange(StartOfMonth(year, month-2), EndOfMonth(year, month)), nil
	case PresetAll:
		return DateRange{}, nil
	}
	t, err := time.Parse("2006-01", preset)
	if err != nil {
		return DateRange{}, fmt.Errorf("unknown period %q", preset)
	}
	return MonthRange(t.Year(), int(t.Month())), nil
}

// NewRangeState resolves preset against now. The empty preset is reported
// as the current month's YYYY-MM value.
func NewRangeState(preset string, now time.Time) (RangeState, error) {
	r, err := ResolvePreset(preset, now)
	if err != nil {
		return RangeState{}, err
	}
	if preset == "" {
		preset = now.Format("2006-01")
	}
	return RangeState{Period: preset, Range: r}, nil
}

// CustomRange builds a state from explicit bounds, either of which may be nil.
func CustomRange(start, end *Date) RangeState {
	return RangeState{Period: PresetCustom, Range: DateRange{Start: start, End: end}}
}

// PeriodOptions lists the named presets followed by the last twelve months,
// newest first.
func PeriodOptions(now time.Time) []PeriodOption {
	opts := []PeriodOption{
		{Value: PresetCurrentYear, Label: "Ano atual"},
		{Value: PresetLastYear, Label: "Ano passado"},
		{Value: PresetLast3Months, Label: "Últimos 3 meses"},
	}
	for i := 0; i < periodMonths; i++ {
		m := StartOfMonth(now.Year(), int(now.Month())-i)
		opts = append(opts, PeriodOption{
			Value: m.Format("2006-01"),
			Label: fmt.Sprintf("%s %d", MonthName(m.Month()), m.Year()),
		})
	}
	return opts
}

// ChartWindow widens r so the charts see the whole reference year. The
// reference is r's start, or now when r has none.
func ChartWindow(r DateRange, now time.Time) DateRange {
	base := DateOf(now)
	if r.Start != nil {
		base = *r.Start
	}
	start := NewDate(base.Year(), 1, 1)
	end := NewDate(base.Year(), 12, 31)
	if r.End != nil && r.End.After(end) {
		end = *r.End
	}
	return NewRange(start, end)
}

// ChartReference is the date whose year the monthly series cover.
func ChartReference(r DateRange, now time.Time) Date {
	if r.Start != nil {
		return *r.Start
	}
	return DateOf(now)
}
