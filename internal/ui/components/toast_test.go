// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"
	"time"
)

func TestToastManagerAddAndDismiss(t *testing.T) {
	m := NewToastManager()

	id1 := m.AddError("boom")
	id2 := m.AddStatus("saved")

	if !m.HasToasts() {
		t.Fatal("HasToasts() = false after adds")
	}
	active := m.Active()
	if len(active) != 2 {
		t.Fatalf("len = %d, want 2", len(active))
	}
	// Newest first.
	if active[0].ID != id2 || active[1].ID != id1 {
		t.Errorf("order = %d,%d want newest first", active[0].ID, active[1].ID)
	}

	m.Dismiss(id2)
	if got := m.Active(); len(got) != 1 || got[0].ID != id1 {
		t.Errorf("after dismiss: %+v", got)
	}

	m.DismissAll()
	if m.HasToasts() {
		t.Error("HasToasts() = true after DismissAll")
	}
}

func TestToastManagerBoundedStack(t *testing.T) {
	m := NewToastManager()
	for i := 0; i < 10; i++ {
		m.AddStatus("toast")
	}
	if got := len(m.Active()); got != 5 {
		t.Errorf("len = %d, want capped at 5", got)
	}
}

func TestToastTickExpires(t *testing.T) {
	m := NewToastManager()
	m.add(Toast{Message: "old", Kind: ToastKindStatus, Duration: time.Millisecond})
	m.AddError("fresh")

	time.Sleep(5 * time.Millisecond)
	remaining := m.Tick()
	if len(remaining) != 1 || remaining[0].Message != "fresh" {
		t.Errorf("remaining = %+v, want only the fresh toast", remaining)
	}
}

func TestRenderToastIncludesIndicator(t *testing.T) {
	out := RenderToast(Toast{Message: "it broke", Kind: ToastKindError, CreatedAt: time.Now(), Duration: time.Minute}, 80)
	if !strings.Contains(out, "[X]") {
		t.Errorf("error toast missing [X] indicator:\n%s", out)
	}
	if !strings.Contains(out, "it broke") {
		t.Errorf("toast missing message:\n%s", out)
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	want := "one two\nthree\nfour"
	if got != want {
		t.Errorf("wrapText = %q, want %q", got, want)
	}
}
