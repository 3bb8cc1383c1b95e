package cache

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	now := testEpoch

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"future", now.Add(time.Second), false},
		{"exactly now", now, true},
		{"past", now.Add(-time.Second), true},
		{"no expiry", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{ExpiresAt: tt.expiresAt}
			if got := e.IsExpired(now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_Remaining(t *testing.T) {
	now := testEpoch
	e := &Entry{ExpiresAt: now.Add(3 * time.Second)}

	if got := e.Remaining(now); got != 3*time.Second {
		t.Errorf("Remaining() = %v, want 3s", got)
	}
	if got := e.Remaining(now.Add(time.Minute)); got != 0 {
		t.Errorf("Remaining() after expiry = %v, want 0", got)
	}
}

func TestEntry_HasAnyTag(t *testing.T) {
	e := &Entry{Tags: tagSet([]string{"user:7", "assessment"})}

	if !e.HasAnyTag(tagSet([]string{"nope", "assessment"})) {
		t.Error("HasAnyTag() = false, want true on overlap")
	}
	if e.HasAnyTag(tagSet([]string{"nope"})) {
		t.Error("HasAnyTag() = true, want false without overlap")
	}
	if (&Entry{}).HasAnyTag(tagSet([]string{"a"})) {
		t.Error("untagged entry matched")
	}
}

func TestTagSet_DropsEmpty(t *testing.T) {
	set := tagSet([]string{"a", "", "a", "b"})
	if len(set) != 2 {
		t.Errorf("tagSet() = %v, want {a, b}", set)
	}
	if tagSet(nil) != nil {
		t.Error("tagSet(nil) != nil")
	}
}
