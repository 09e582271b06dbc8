package store

import (
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func strPtr(s string) *string { return &s }

func TestBuildEventUpdate_DescriptionOnly(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	expr, names, values, err := buildEventUpdate(EventUpdate{Description: strPtr("Two cars collided")}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(expr, "SET ") {
		t.Errorf("expression should start with SET: %q", expr)
	}
	if !strings.Contains(expr, "#desc = :desc") {
		t.Errorf("missing description clause: %q", expr)
	}
	if !strings.Contains(expr, "#updatedAt = :updatedAt") {
		t.Errorf("missing updatedAt clause: %q", expr)
	}
	if strings.Contains(expr, ":emo") || strings.Contains(expr, ":audio") || strings.Contains(expr, "list_append") {
		t.Errorf("unset fields leaked into expression: %q", expr)
	}

	if names["#desc"] != "description" {
		t.Errorf("expected #desc name mapping, got %v", names)
	}
	desc, ok := values[":desc"].(*types.AttributeValueMemberS)
	if !ok || desc.Value != "Two cars collided" {
		t.Errorf("unexpected :desc value: %#v", values[":desc"])
	}
	ts, ok := values[":updatedAt"].(*types.AttributeValueMemberS)
	if !ok || ts.Value != "2026-03-14T09:26:53Z" {
		t.Errorf("unexpected :updatedAt value: %#v", values[":updatedAt"])
	}
}

func TestBuildEventUpdate_AppendImages(t *testing.T) {
	update := EventUpdate{
		AppendImages: []ImageAttachment{
			{Key: "owner/event/photo-1.jpg", ContentType: "image/jpeg", Size: 2048},
		},
	}
	expr, names, values, err := buildEventUpdate(update, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(expr, "#imgs = list_append(if_not_exists(#imgs, :emptyList), :imgs)") {
		t.Errorf("missing append clause: %q", expr)
	}
	if names["#imgs"] != "images" {
		t.Errorf("expected #imgs name mapping, got %v", names)
	}

	empty, ok := values[":emptyList"].(*types.AttributeValueMemberL)
	if !ok || len(empty.Value) != 0 {
		t.Errorf(":emptyList should be an empty list, got %#v", values[":emptyList"])
	}
	imgs, ok := values[":imgs"].(*types.AttributeValueMemberL)
	if !ok || len(imgs.Value) != 1 {
		t.Fatalf(":imgs should be a one-element list, got %#v", values[":imgs"])
	}
}

func TestBuildEventUpdate_AllFields(t *testing.T) {
	update := EventUpdate{
		Description: strPtr("desc"),
		Emotions:    &EmotionScores{Aggression: 7.1, Hostility: 6.5, Frustration: 8.9},
		Audio:       &AudioAttachment{Key: "owner/event/audio.mp3", ContentType: "audio/mpeg", Size: 512},
		AppendImages: []ImageAttachment{
			{Key: "a.jpg", ContentType: "image/jpeg"},
			{Key: "b.png", ContentType: "image/png"},
		},
	}
	expr, _, values, err := buildEventUpdate(update, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, clause := range []string{"#desc = :desc", "#emo = :emo", "#audio = :audio", "list_append", "#updatedAt = :updatedAt"} {
		if !strings.Contains(expr, clause) {
			t.Errorf("missing clause %q in %q", clause, expr)
		}
	}

	emo, ok := values[":emo"].(*types.AttributeValueMemberM)
	if !ok {
		t.Fatalf(":emo should be a map, got %#v", values[":emo"])
	}
	agg, ok := emo.Value["aggression"].(*types.AttributeValueMemberN)
	if !ok || agg.Value != "7.1" {
		t.Errorf("unexpected aggression value: %#v", emo.Value["aggression"])
	}

	imgs := values[":imgs"].(*types.AttributeValueMemberL)
	if len(imgs.Value) != 2 {
		t.Errorf("expected 2 images, got %d", len(imgs.Value))
	}
}

func TestBuildEventUpdate_Empty(t *testing.T) {
	if _, _, _, err := buildEventUpdate(EventUpdate{}, time.Now()); err == nil {
		t.Error("expected error for empty update")
	}
}

func TestEventUpdate_IsEmpty(t *testing.T) {
	tests := []struct {
		name   string
		update EventUpdate
		want   bool
	}{
		{"zero value", EventUpdate{}, true},
		{"description set", EventUpdate{Description: strPtr("")}, false},
		{"emotions set", EventUpdate{Emotions: &EmotionScores{}}, false},
		{"audio set", EventUpdate{Audio: &AudioAttachment{}}, false},
		{"images set", EventUpdate{AppendImages: []ImageAttachment{{}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.update.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}
