// Package schedule builds the "when to run" descriptor attached to every
// job creation request.
//
// A job either starts at a concrete instant (FromTime, FromCron) or after a
// relative delta from now (FromNow), and may optionally recur. Builders use
// value receivers so partially-built properties can be shared and extended
// without aliasing surprises.
package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Delta is a relative duration in calendar units. Unit methods accumulate:
// adding years twice sums the values. No upper bound is enforced locally;
// the service rejects unreasonable values on its side.
type Delta struct {
	Years   uint `json:"years"`
	Months  uint `json:"months"`
	Days    uint `json:"days"`
	Hours   uint `json:"hours"`
	Minutes uint `json:"minutes"`
	Seconds uint `json:"seconds"`
}

// IsZero reports whether no unit has been set.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Properties is the immutable result of a builder, consumed once per
// scheduling call.
type Properties struct {
	// StartFrom is the encoded start descriptor, either
	// {"type":"delta",...} or {"type":"datetime","datetime":...}.
	StartFrom json.RawMessage
	// RunEvery is nil for one-shot jobs.
	RunEvery *Delta
	// CustomID is empty when the service should assign the id.
	CustomID string
}

// Builder is anything that terminates into job Properties.
type Builder interface {
	Properties() Properties
}

const datetimeFormat = "2006-01-02T15:04:05.000Z"

type deltaStart struct {
	Type string `json:"type"`
	Delta
}

type datetimeStart struct {
	Type     string `json:"type"`
	DateTime string `json:"datetime"`
}

// NowBuilder schedules relative to the moment the service receives the job.
type NowBuilder struct {
	d         Delta
	id        string
	recurring bool
}

// FromNow starts an empty relative builder. With no units added the job
// fires immediately.
func FromNow() NowBuilder { return NowBuilder{} }

func (b NowBuilder) Years(n uint) NowBuilder   { b.d.Years += n; return b }
func (b NowBuilder) Months(n uint) NowBuilder  { b.d.Months += n; return b }
func (b NowBuilder) Days(n uint) NowBuilder    { b.d.Days += n; return b }
func (b NowBuilder) Hours(n uint) NowBuilder   { b.d.Hours += n; return b }
func (b NowBuilder) Minutes(n uint) NowBuilder { b.d.Minutes += n; return b }
func (b NowBuilder) Seconds(n uint) NowBuilder { b.d.Seconds += n; return b }

// Recurring repeats the job every accumulated delta.
func (b NowBuilder) Recurring() NowBuilder { b.recurring = true; return b }

// CustomID sets a caller-chosen job id. Empty means service-assigned.
func (b NowBuilder) CustomID(id string) NowBuilder { b.id = id; return b }

func (b NowBuilder) Properties() Properties {
	raw, _ := json.Marshal(deltaStart{Type: "delta", Delta: b.d})
	var every *Delta
	if b.recurring {
		d := b.d
		every = &d
	}
	return Properties{StartFrom: raw, RunEvery: every, CustomID: b.id}
}

// TimeBuilder schedules at a concrete instant.
type TimeBuilder struct {
	t  time.Time
	d  *Delta
	id string
}

// FromTime starts a builder at t. The instant is encoded in UTC with
// millisecond precision.
func FromTime(t time.Time) TimeBuilder { return TimeBuilder{t: t} }

func (b TimeBuilder) every(apply func(*Delta)) TimeBuilder {
	d := Delta{}
	if b.d != nil {
		d = *b.d
	}
	apply(&d)
	b.d = &d
	return b
}

func (b TimeBuilder) EveryYears(n uint) TimeBuilder {
	return b.every(func(d *Delta) { d.Years += n })
}

func (b TimeBuilder) EveryMonths(n uint) TimeBuilder {
	return b.every(func(d *Delta) { d.Months += n })
}

func (b TimeBuilder) EveryDays(n uint) TimeBuilder {
	return b.every(func(d *Delta) { d.Days += n })
}

func (b TimeBuilder) EveryHours(n uint) TimeBuilder {
	return b.every(func(d *Delta) { d.Hours += n })
}

func (b TimeBuilder) EveryMinutes(n uint) TimeBuilder {
	return b.every(func(d *Delta) { d.Minutes += n })
}

func (b TimeBuilder) EverySeconds(n uint) TimeBuilder {
	return b.every(func(d *Delta) { d.Seconds += n })
}

// CustomID sets a caller-chosen job id. Empty means service-assigned.
func (b TimeBuilder) CustomID(id string) TimeBuilder { b.id = id; return b }

func (b TimeBuilder) Properties() Properties {
	raw, _ := json.Marshal(datetimeStart{
		Type:     "datetime",
		DateTime: b.t.UTC().Format(datetimeFormat),
	})
	return Properties{StartFrom: raw, RunEvery: b.d, CustomID: b.id}
}

// FromCron resolves a standard 5-field cron expression to its next
// activation after now and returns a TimeBuilder at that instant. The
// recurrence, if any, still has to be declared through the EveryX methods:
// cron is only used to pick the first run.
func FromCron(expr string) (TimeBuilder, error) {
	return fromCronAt(expr, time.Now())
}

func fromCronAt(expr string, now time.Time) (TimeBuilder, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return TimeBuilder{}, fmt.Errorf("schedule: parse cron %q: %w", expr, err)
	}
	return FromTime(sched.Next(now.UTC())), nil
}
