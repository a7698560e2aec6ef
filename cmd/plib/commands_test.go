package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/reference"
	"github.com/matsen/plib/internal/storage"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"ümläüt-heavy title", 8, "ümläü..."},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestFormatAuthorsShort(t *testing.T) {
	authors := []reference.Author{{First: "A", Last: "One"}, {First: "B", Last: "Two"}, {First: "C", Last: "Three"}}
	if got := formatAuthorsShort(authors, 3); got != "One, Two, Three" {
		t.Errorf("got %q", got)
	}
	if got := formatAuthorsShort(authors, 2); got != "One, Two et al." {
		t.Errorf("got %q", got)
	}
	if got := formatAuthorsShort(nil, 2); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		in   reference.PublicationDate
		want string
	}{
		{reference.PublicationDate{Year: 2024}, "2024"},
		{reference.PublicationDate{Year: 2024, Month: 3}, "2024-03"},
		{reference.PublicationDate{Year: 2024, Month: 3, Day: 9}, "2024-03-09"},
	}
	for _, tt := range tests {
		if got := formatDate(tt.in); got != tt.want {
			t.Errorf("formatDate(%+v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSortedKinds(t *testing.T) {
	ids := map[reference.IDKind]string{reference.KindS2: "x", reference.KindArXiv: "y", reference.KindDOI: "z"}
	got := sortedKinds(ids)
	want := []reference.IDKind{reference.KindArXiv, reference.KindDOI, reference.KindS2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sortedKinds = %v, want %v", got, want)
		}
	}
}

func TestApplyEdits(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(editCmd.Flags())
	if err := cmd.ParseFlags([]string{"--title", "New", "--year", "2021", "--tag", "b", "--untag", "a", "--folder", "f", "--flag"}); err != nil {
		t.Fatalf("parsing flags: %v", err)
	}
	t.Cleanup(func() {
		editTitle, editYear, editFlag = "", 0, false
		editTags, editUntags, editFolders = nil, nil, nil
	})

	d := reference.NewDraft()
	d.Title = "Old"
	d.Venue = "Kept"
	d.Tags = []string{"a"}

	out := applyEdits(cmd, d)
	if out.Title != "New" || out.Venue != "Kept" {
		t.Errorf("title/venue = %q/%q", out.Title, out.Venue)
	}
	if out.Published.Year != 2021 {
		t.Errorf("year = %d", out.Published.Year)
	}
	if len(out.Tags) != 1 || out.Tags[0] != "b" {
		t.Errorf("tags = %v", out.Tags)
	}
	if len(out.Folders) != 1 || out.Folders[0] != "f" {
		t.Errorf("folders = %v", out.Folders)
	}
	if !out.Flagged {
		t.Error("expected flagged")
	}
	if len(d.Tags) != 1 || d.Tags[0] != "a" {
		t.Errorf("input draft was modified: %v", d.Tags)
	}
}

func TestScheduleInfo(t *testing.T) {
	global := config.DefaultGlobalConfig()
	global.Scheduler.IntervalDays = 3

	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	info := scheduleInfo(global, storage.ScheduleState{LastRun: last})
	if !info.Enabled || info.IntervalDays != 3 {
		t.Fatalf("info = %+v", info)
	}
	if info.NextDue == nil || !info.NextDue.Equal(last.Add(72*time.Hour)) {
		t.Errorf("next due = %v", info.NextDue)
	}

	global.Scheduler.Enabled = false
	info = scheduleInfo(global, storage.ScheduleState{})
	if info.Enabled || info.NextDue != nil || info.LastRun != nil {
		t.Errorf("disabled info = %+v", info)
	}
}
