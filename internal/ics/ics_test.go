package ics

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"semcal/internal/date"
	"semcal/internal/model"
)

var feedBody = strings.Join([]string{
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//test//EN",
	"BEGIN:VEVENT",
	"UID:holiday@example",
	"DTSTAMP:20250101T000000Z",
	"DTSTART;VALUE=DATE:20251010",
	"DTEND;VALUE=DATE:20251011",
	"SUMMARY:Holiday",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:gym@example",
	"DTSTAMP:20250101T000000Z",
	"DTSTART:20251006T170000Z",
	"DTEND:20251006T180000Z",
	"RRULE:FREQ=WEEKLY;COUNT=4",
	"EXDATE:20251013T170000Z",
	"SUMMARY:Gym",
	"LOCATION:Campus",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:gym@example",
	"DTSTAMP:20250101T000000Z",
	"RECURRENCE-ID:20251020T170000Z",
	"DTSTART:20251021T170000Z",
	"DTEND:20251021T180000Z",
	"SUMMARY:Gym (moved)",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"DTSTAMP:20250101T000000Z",
	"DTSTART:20251008T100000Z",
	"SUMMARY:No UID",
	"END:VEVENT",
	"END:VCALENDAR",
	"",
}, "\r\n")

var uni = Source{ID: "uni", URL: "https://example.com/private/cal.ics?token=x"}

func TestParseFeed(t *testing.T) {
	events, err := ParseFeed(uni, []byte(feedBody))
	if err != nil {
		t.Fatalf("ParseFeed() = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (event without UID skipped)", len(events))
	}
	if !events[0].AllDay || events[0].Summary != "Holiday" {
		t.Errorf("holiday = %+v", events[0])
	}
	gym := events[1]
	if gym.AllDay || gym.RawRRule != "FREQ=WEEKLY;COUNT=4" || len(gym.ExDates) != 1 || gym.IsOverride() {
		t.Errorf("gym = %+v", gym)
	}
	if !events[2].IsOverride() {
		t.Errorf("override not detected: %+v", events[2])
	}

	if _, err := ParseFeed(uni, nil); err == nil {
		t.Error("empty body should fail")
	}
}

func TestImportEvents(t *testing.T) {
	events, err := ParseFeed(uni, []byte(feedBody))
	if err != nil {
		t.Fatal(err)
	}
	res, err := ImportEvents(events, ImportConfig{
		Location:   time.UTC,
		RangeStart: date.MustParse("2025-10-01"),
		RangeEnd:   date.MustParse("2025-10-31"),
	})
	if err != nil {
		t.Fatal(err)
	}

	type row struct{ date, title, start, end string }
	var got []row
	for _, task := range res.Tasks {
		if !task.ReadOnly || task.Type != model.TypePersonal {
			t.Errorf("feed task %s not a read-only personal task", task.ID)
		}
		got = append(got, row{task.Date, task.Title, task.StartTime, task.EndTime})
	}
	want := []row{
		{"2025-10-10", "Holiday", "", ""},
		{"2025-10-06", "Gym", "17:00", "18:00"},
		{"2025-10-21", "Gym (moved)", "17:00", "18:00"},
		{"2025-10-27", "Gym", "17:00", "18:00"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ImportEvents():\n got %v\nwant %v", got, want)
	}
	if id := res.Tasks[1].ID; id != FeedTaskID("uni", "gym@example", "2025-10-06") {
		t.Errorf("id = %q", id)
	}
	if res.Tasks[1].Description != "Campus" {
		t.Errorf("location not carried: %q", res.Tasks[1].Description)
	}
}

func TestImportEventsWindowAndZone(t *testing.T) {
	events, _ := ParseFeed(uni, []byte(feedBody))
	seoul := time.FixedZone("KST", 9*3600)
	res, err := ImportEvents(events, ImportConfig{
		Location:   seoul,
		RangeStart: date.MustParse("2025-10-07"),
		RangeEnd:   date.MustParse("2025-10-07"),
	})
	if err != nil {
		t.Fatal(err)
	}
	// 17:00 UTC on the 6th is 02:00 on the 7th in Seoul.
	if len(res.Tasks) != 1 || res.Tasks[0].Date != "2025-10-07" || res.Tasks[0].StartTime != "02:00" {
		t.Errorf("tasks = %+v", res.Tasks)
	}

	if _, err := ImportEvents(events, ImportConfig{RangeStart: date.MustParse("2025-10-07"), RangeEnd: date.MustParse("2025-10-06")}); err == nil {
		t.Error("inverted range should fail")
	}
}

func TestImportEventsCap(t *testing.T) {
	events := []ParsedEvent{{
		Source:   uni,
		UID:      "daily",
		Summary:  "Daily",
		Start:    time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
	}}
	res, err := ImportEvents(events, ImportConfig{
		Location:               time.UTC,
		RangeStart:             date.MustParse("2025-10-01"),
		RangeEnd:               date.MustParse("2025-10-31"),
		MaxOccurrencesPerEvent: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tasks) != 5 || !reflect.DeepEqual(res.TruncatedUIDs, []string{"daily"}) {
		t.Errorf("tasks = %d, truncated = %v", len(res.Tasks), res.TruncatedUIDs)
	}
}

func TestFetcherUsesETagCache(t *testing.T) {
	var hits, failing atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if failing.Load() == 1 {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "uni", URL: srv.URL + "/cal.ics"}
	ctx := context.Background()

	first, err := f.FetchOne(ctx, src)
	if err != nil || first.FromCache || string(first.Body) != feedBody {
		t.Fatalf("first fetch = %+v, %v", first.FromCache, err)
	}
	second, err := f.FetchOne(ctx, src)
	if err != nil || !second.FromCache || !bytes.Equal(second.Body, first.Body) {
		t.Fatalf("second fetch = %+v, %v", second.FromCache, err)
	}
	failing.Store(1)
	third, err := f.FetchOne(ctx, src)
	if err != nil || !third.FromCache {
		t.Fatalf("fetch during outage = %+v, %v", third.FromCache, err)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d", hits.Load())
	}

	other := Source{ID: "none", URL: srv.URL + "/other.ics"}
	results, errs := f.FetchAll(ctx, []Source{src, other})
	if len(results) != 1 || len(errs) != 1 {
		t.Errorf("FetchAll = %d results, %d errors", len(results), len(errs))
	}
}

func TestFeedsRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	feeds := NewFeeds(NewFetcher(t.TempDir(), srv.Client()), []Source{{ID: "uni", URL: srv.URL}}, time.UTC)
	if got, _ := feeds.Tasks(date.MustParse("2025-10-01"), date.MustParse("2025-10-31")); len(got) != 0 {
		t.Errorf("tasks before refresh = %d", len(got))
	}
	if err := feeds.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}
	got, err := feeds.Tasks(date.MustParse("2025-10-10"), date.MustParse("2025-10-10"))
	if err != nil || len(got) != 1 || got[0].Title != "Holiday" {
		t.Errorf("Tasks() = %v, %v", model.IDs(got), err)
	}
	if feeds.UpdatedAt().IsZero() {
		t.Error("UpdatedAt not set")
	}

	var nilFeeds *Feeds
	if got, err := nilFeeds.Tasks(date.MustParse("2025-10-10"), date.MustParse("2025-10-10")); got != nil || err != nil {
		t.Errorf("nil Feeds.Tasks() = %v, %v", got, err)
	}
}

func TestExport(t *testing.T) {
	tasks := []model.Task{
		{ID: "t1-2025-10-06", Title: "Algebra", Type: model.TypeCourse, Date: "2025-10-06", StartTime: "08:00", EndTime: "10:00", ActivityType: model.ActivityCourse},
		{ID: "p1", Title: "Call home", Type: model.TypePersonal, Date: "2025-10-07", Notes: "Sunday too"},
		{ID: "feed-x", Title: "Holiday", Type: model.TypePersonal, Date: "2025-10-10", ReadOnly: true},
	}
	var buf bytes.Buffer
	err := Export(&buf, tasks, ExportConfig{Name: "Semester Calendar", Location: time.UTC, Now: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("Export() = %v", err)
	}
	out := buf.String()

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("export does not parse: %v", err)
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (read-only feed task left out)", len(events))
	}
	if uid := events[0].GetProperty(ical.ComponentPropertyUniqueId).Value; uid != "t1-2025-10-06@semester-calendar" {
		t.Errorf("uid = %q", uid)
	}
	for _, want := range []string{"DTSTART:20251006T080000Z", "DTEND:20251006T100000Z", "20251007"} {
		if !strings.Contains(out, want) {
			t.Errorf("export lacks %q:\n%s", want, out)
		}
	}

	bad := []model.Task{{ID: "x", Title: "x", Type: model.TypePersonal, Date: "2025-10-07", StartTime: "8am"}}
	if err := Export(&bytes.Buffer{}, bad, ExportConfig{}); err == nil {
		t.Error("bad start time should fail")
	}
}

func TestRedactURL(t *testing.T) {
	if got := redactURL(uni.URL); got != "https://example.com/...(redacted)" {
		t.Errorf("redactURL() = %q", got)
	}
	if got := redactURL("not a url"); got != "ics://...(redacted)" {
		t.Errorf("redactURL() = %q", got)
	}
}
