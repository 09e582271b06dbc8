package store

import (
	"testing"
	"time"
)

func eventAt(id, username string, ts time.Time) EmergencyEvent {
	return EmergencyEvent{
		ID:          id,
		Username:    username,
		Description: "desc-" + id,
		Timestamp:   ts,
	}
}

func TestTopRecent_NewestFirst(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	events := []EmergencyEvent{
		eventAt("e3", "alice", base.Add(3*time.Minute)),
		eventAt("e7", "bob", base.Add(7*time.Minute)),
		eventAt("e1", "alice", base.Add(1*time.Minute)),
		eventAt("e6", "carol", base.Add(6*time.Minute)),
		eventAt("e5", "bob", base.Add(5*time.Minute)),
		eventAt("e2", "carol", base.Add(2*time.Minute)),
		eventAt("e4", "alice", base.Add(4*time.Minute)),
	}

	got := topRecent(events, RecentFeedSize)

	if len(got) != RecentFeedSize {
		t.Fatalf("expected %d entries, got %d", RecentFeedSize, len(got))
	}
	wantOrder := []string{"e7", "e6", "e5", "e4", "e3"}
	for i, want := range wantOrder {
		if got[i].EventID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, got[i].EventID)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("feed not descending at position %d", i)
		}
	}
}

func TestTopRecent_FewerThanLimit(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	events := []EmergencyEvent{
		eventAt("e1", "alice", base),
		eventAt("e2", "bob", base.Add(time.Minute)),
	}

	got := topRecent(events, RecentFeedSize)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].EventID != "e2" || got[1].EventID != "e1" {
		t.Errorf("unexpected order: %s, %s", got[0].EventID, got[1].EventID)
	}
}

func TestTopRecent_Empty(t *testing.T) {
	if got := topRecent(nil, RecentFeedSize); len(got) != 0 {
		t.Errorf("expected empty feed, got %d entries", len(got))
	}
}

func TestTopRecent_FlattensEventFields(t *testing.T) {
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	events := []EmergencyEvent{{
		ID:          "evt-1",
		Username:    "alice",
		Location:    Location{Latitude: 43.65, Longitude: -79.38},
		Description: "Car fire on the shoulder",
		Timestamp:   ts,
		Images:      []ImageAttachment{{Key: "k"}},
		Emotions:    &EmotionScores{Aggression: 2},
	}}

	got := topRecent(events, 5)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.EventID != "evt-1" || e.Username != "alice" || e.Description != "Car fire on the shoulder" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Location.Latitude != 43.65 || e.Location.Longitude != -79.38 {
		t.Errorf("unexpected location: %+v", e.Location)
	}
	if !e.Timestamp.Equal(ts) {
		t.Errorf("unexpected timestamp: %v", e.Timestamp)
	}
}

func TestSortProfilesByUsername(t *testing.T) {
	profiles := []Profile{
		{User: User{Username: "carol", OwnerKey: "c@x"}},
		{User: User{Username: "alice", OwnerKey: "a2@x"}},
		{User: User{Username: "alice", OwnerKey: "a1@x"}},
		{User: User{Username: "bob", OwnerKey: "b@x"}},
	}

	sortProfilesByUsername(profiles)

	wantKeys := []string{"a1@x", "a2@x", "b@x", "c@x"}
	for i, want := range wantKeys {
		if profiles[i].User.OwnerKey != want {
			t.Errorf("position %d: expected %s, got %s", i, want, profiles[i].User.OwnerKey)
		}
	}
}
