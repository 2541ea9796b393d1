package badger

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxshift/internal/journal"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RequiresDir(t *testing.T) {
	t.Parallel()
	if _, err := Open(Options{}); err == nil {
		t.Fatal("expected error without Dir, got nil")
	}
}

func TestStore_RecentNewestLast(t *testing.T) {
	t.Parallel()
	s := openMem(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"un", "deux", "trois", "quatre"} {
		e := journal.Entry{
			ID:          uuid.New(),
			CapturedAt:  base.Add(time.Duration(i) * time.Second),
			Text:        text,
			Outcome:     journal.OutcomeSpoken,
			STTDuration: time.Duration(i+1) * 100 * time.Millisecond,
			SynthBytes:  i * 1000,
		}
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{2, []string{"trois", "quatre"}},
		{0, []string{"un", "deux", "trois", "quatre"}},
		{9, []string{"un", "deux", "trois", "quatre"}},
	}
	for _, tt := range tests {
		got, err := s.Recent(ctx, tt.limit)
		if err != nil {
			t.Fatalf("Recent(%d): %v", tt.limit, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("Recent(%d): got %d entries, want %d", tt.limit, len(got), len(tt.want))
		}
		for i, w := range tt.want {
			if got[i].Text != w {
				t.Errorf("Recent(%d)[%d]: got %q, want %q", tt.limit, i, got[i].Text, w)
			}
		}
	}
}

func TestStore_RoundTripFields(t *testing.T) {
	t.Parallel()
	s := openMem(t)
	ctx := context.Background()

	want := journal.Entry{
		ID:            uuid.New(),
		CapturedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Text:          "euh",
		Outcome:       journal.OutcomeFiltered,
		Reason:        "noise word",
		AudioDuration: 640 * time.Millisecond,
		STTDuration:   90 * time.Millisecond,
	}
	if err := s.Record(ctx, want); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := s.Recent(ctx, 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("Recent: %v (%d entries)", err, len(got))
	}
	g := got[0]
	if g.ID != want.ID || g.Text != want.Text || g.Outcome != want.Outcome || g.Reason != want.Reason {
		t.Errorf("got %+v, want %+v", g, want)
	}
	if g.AudioDuration != want.AudioDuration || g.STTDuration != want.STTDuration {
		t.Errorf("got durations %v/%v, want %v/%v", g.AudioDuration, g.STTDuration, want.AudioDuration, want.STTDuration)
	}
	if !g.CapturedAt.Equal(want.CapturedAt) {
		t.Errorf("got captured_at %v, want %v", g.CapturedAt, want.CapturedAt)
	}
}

func TestEntryKey_OrdersByTime(t *testing.T) {
	t.Parallel()
	early := journal.Entry{ID: uuid.New(), CapturedAt: time.Unix(100, 0)}
	late := journal.Entry{ID: uuid.New(), CapturedAt: time.Unix(200, 0)}
	if bytes.Compare(entryKey(early), entryKey(late)) >= 0 {
		t.Error("expected earlier entry to sort first")
	}
	if !bytes.HasPrefix(entryKey(early), keyPrefix) {
		t.Error("expected key to carry the utt: prefix")
	}
}
