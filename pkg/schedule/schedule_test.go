package schedule

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDeltaAccumulation(t *testing.T) {
	t.Parallel()
	p := FromNow().Years(1).Months(2).Years(1).Properties()

	var got struct {
		Type string `json:"type"`
		Delta
	}
	if err := json.Unmarshal(p.StartFrom, &got); err != nil {
		t.Fatalf("unmarshal start_from: %v", err)
	}
	if got.Type != "delta" {
		t.Fatalf("type = %q, want delta", got.Type)
	}
	want := Delta{Years: 2, Months: 2}
	if got.Delta != want {
		t.Fatalf("delta = %+v, want %+v", got.Delta, want)
	}
	if p.RunEvery != nil {
		t.Fatalf("one-shot job has run_every %+v", p.RunEvery)
	}
}

func TestFromNowDefaultsToImmediate(t *testing.T) {
	t.Parallel()
	p := FromNow().Properties()
	want := `{"type":"delta","years":0,"months":0,"days":0,"hours":0,"minutes":0,"seconds":0}`
	if string(p.StartFrom) != want {
		t.Fatalf("start_from = %s, want %s", p.StartFrom, want)
	}
}

func TestFromNowRecurring(t *testing.T) {
	t.Parallel()
	p := FromNow().Minutes(30).Recurring().Properties()
	if p.RunEvery == nil {
		t.Fatal("recurring job has nil run_every")
	}
	if *p.RunEvery != (Delta{Minutes: 30}) {
		t.Fatalf("run_every = %+v", *p.RunEvery)
	}
}

func TestFromTimeEncoding(t *testing.T) {
	t.Parallel()
	p := FromTime(time.Unix(0, 0)).Properties()
	want := `{"type":"datetime","datetime":"1970-01-01T00:00:00.000Z"}`
	if string(p.StartFrom) != want {
		t.Fatalf("start_from = %s, want %s", p.StartFrom, want)
	}
	if p.RunEvery != nil {
		t.Fatalf("run_every = %+v, want nil", p.RunEvery)
	}
}

func TestFromTimeMillisecondPrecision(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 3, 1, 12, 30, 45, 120_000_000, time.FixedZone("plus2", 2*3600))
	p := FromTime(at).Properties()
	want := `{"type":"datetime","datetime":"2024-03-01T10:30:45.120Z"}`
	if string(p.StartFrom) != want {
		t.Fatalf("start_from = %s, want %s", p.StartFrom, want)
	}
}

func TestFromTimeRecurrence(t *testing.T) {
	t.Parallel()
	p := FromTime(time.Unix(0, 0)).EveryDays(1).EveryHours(12).EveryDays(1).Properties()
	if p.RunEvery == nil {
		t.Fatal("nil run_every")
	}
	if *p.RunEvery != (Delta{Days: 2, Hours: 12}) {
		t.Fatalf("run_every = %+v", *p.RunEvery)
	}
}

func TestBuilderValueSemantics(t *testing.T) {
	t.Parallel()
	base := FromNow().Hours(1)
	a := base.Hours(1)
	b := base.Minutes(5)

	var da, db struct {
		Delta
	}
	pa := a.Properties()
	pb := b.Properties()
	if err := json.Unmarshal(pa.StartFrom, &da); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal(pb.StartFrom, &db); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if da.Delta != (Delta{Hours: 2}) {
		t.Fatalf("a = %+v", da.Delta)
	}
	if db.Delta != (Delta{Hours: 1, Minutes: 5}) {
		t.Fatalf("b = %+v", db.Delta)
	}

	// Recurrence pointers must not be shared between forks either.
	tbase := FromTime(time.Unix(0, 0)).EveryDays(1)
	t1 := tbase.EveryDays(1)
	if *tbase.Properties().RunEvery != (Delta{Days: 1}) {
		t.Fatalf("base mutated: %+v", *tbase.Properties().RunEvery)
	}
	if *t1.Properties().RunEvery != (Delta{Days: 2}) {
		t.Fatalf("fork = %+v", *t1.Properties().RunEvery)
	}
}

func TestCustomID(t *testing.T) {
	t.Parallel()
	if got := FromNow().CustomID("job-7").Properties().CustomID; got != "job-7" {
		t.Fatalf("CustomID = %q", got)
	}
	if got := FromTime(time.Unix(0, 0)).Properties().CustomID; got != "" {
		t.Fatalf("CustomID = %q, want empty", got)
	}
}

func TestFromCron(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 10, 20, 0, 0, time.UTC)
	b, err := fromCronAt("0 12 * * *", now)
	if err != nil {
		t.Fatalf("fromCronAt: %v", err)
	}
	p := b.Properties()
	want := `{"type":"datetime","datetime":"2024-03-01T12:00:00.000Z"}`
	if string(p.StartFrom) != want {
		t.Fatalf("start_from = %s, want %s", p.StartFrom, want)
	}

	if _, err := FromCron("not a cron spec"); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}

func TestDeltaIsZero(t *testing.T) {
	t.Parallel()
	if !(Delta{}).IsZero() {
		t.Fatal("zero delta reported non-zero")
	}
	if (Delta{Seconds: 1}).IsZero() {
		t.Fatal("non-zero delta reported zero")
	}
}
