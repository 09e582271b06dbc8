// Package store defines the persistence model for users and their emergency
// events, plus the DynamoDB implementation backing it.
//
// Layout is a single-table design: each user owns one PROFILE item and one
// item per emergency event, all sharing the user's partition key. Enrichment
// results (description, emotion scores, media attachments) land on the event
// item through conditional, field-level updates so that concurrent analyses
// of different events — or different fields of the same event — never
// overwrite each other.
package store

import (
	"context"
	"sort"
	"time"
)

// User is the profile record for an event owner. The owner key is the
// caller-supplied identity (an email address or device identifier) and is
// carried in the partition key rather than stored as an attribute.
type User struct {
	OwnerKey  string    `json:"ownerKey" dynamodbav:"-"`
	Username  string    `json:"username" dynamodbav:"username"`
	Email     string    `json:"email,omitempty" dynamodbav:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt"`
}

// Location is a WGS84 coordinate pair captured at event creation.
type Location struct {
	Latitude  float64 `json:"latitude" dynamodbav:"latitude"`
	Longitude float64 `json:"longitude" dynamodbav:"longitude"`
}

// EmotionScores holds the 0–10 ratings produced by the emotion scoring
// subprocess. A nil *EmotionScores on an event means scoring has not run.
type EmotionScores struct {
	Aggression  float64 `json:"aggression" dynamodbav:"aggression"`
	Hostility   float64 `json:"hostility" dynamodbav:"hostility"`
	Frustration float64 `json:"frustration" dynamodbav:"frustration"`
}

// CaptureInfo is camera metadata extracted from an image's EXIF block.
// All fields are optional; images with no usable EXIF carry a nil *CaptureInfo.
type CaptureInfo struct {
	TakenAt     time.Time `json:"takenAt,omitempty" dynamodbav:"takenAt,omitempty"`
	Latitude    float64   `json:"latitude,omitempty" dynamodbav:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty" dynamodbav:"longitude,omitempty"`
	CameraMake  string    `json:"cameraMake,omitempty" dynamodbav:"cameraMake,omitempty"`
	CameraModel string    `json:"cameraModel,omitempty" dynamodbav:"cameraModel,omitempty"`
}

// ImageAttachment references an image stored in S3, with an inline JPEG
// thumbnail small enough to keep the event item well under the DynamoDB
// item-size limit.
type ImageAttachment struct {
	Key         string       `json:"key" dynamodbav:"key"`
	ContentType string       `json:"contentType" dynamodbav:"contentType"`
	Size        int64        `json:"size" dynamodbav:"size"`
	Thumbnail   []byte       `json:"thumbnail,omitempty" dynamodbav:"thumbnail,omitempty"`
	Capture     *CaptureInfo `json:"capture,omitempty" dynamodbav:"capture,omitempty"`
}

// AudioAttachment references an audio clip stored in S3. An event holds at
// most one; uploading again replaces it.
type AudioAttachment struct {
	Key         string `json:"key" dynamodbav:"key"`
	ContentType string `json:"contentType" dynamodbav:"contentType"`
	Size        int64  `json:"size" dynamodbav:"size"`
}

// PendingDescription is the placeholder stored at event creation, before
// any image analysis has produced a real description.
const PendingDescription = "Pending AI analysis"

// EmergencyEvent is one reported emergency. Description starts as
// PendingDescription and is replaced by the vision model's summary once the
// first image is analysed. Images is append-only.
type EmergencyEvent struct {
	ID          string            `json:"id" dynamodbav:"-"`
	OwnerKey    string            `json:"ownerKey" dynamodbav:"-"`
	Username    string            `json:"username" dynamodbav:"username"`
	Location    Location          `json:"location" dynamodbav:"location"`
	Description string            `json:"description" dynamodbav:"description"`
	Timestamp   time.Time         `json:"timestamp" dynamodbav:"timestamp"`
	Images      []ImageAttachment `json:"images,omitempty" dynamodbav:"images,omitempty"`
	Audio       *AudioAttachment  `json:"audio,omitempty" dynamodbav:"audio,omitempty"`
	Emotions    *EmotionScores    `json:"emotions,omitempty" dynamodbav:"emotions,omitempty"`
	UpdatedAt   time.Time         `json:"updatedAt,omitempty" dynamodbav:"updatedAt,omitempty"`
}

// EventUpdate describes a partial, field-level update to an existing event.
// Nil pointer fields are left untouched; AppendImages entries are appended to
// the event's image list without replacing existing entries. The zero value
// is an empty update and is rejected by MergeEventFields.
type EventUpdate struct {
	Description  *string
	Emotions     *EmotionScores
	Audio        *AudioAttachment
	AppendImages []ImageAttachment
}

// IsEmpty reports whether the update would change nothing.
func (u EventUpdate) IsEmpty() bool {
	return u.Description == nil && u.Emotions == nil && u.Audio == nil && len(u.AppendImages) == 0
}

// Profile is a user together with all of their events in creation order.
type Profile struct {
	User   User             `json:"user"`
	Events []EmergencyEvent `json:"events"`
}

// RecentEvent is the flattened feed entry returned by MostRecentEvents.
type RecentEvent struct {
	EventID     string    `json:"eventId"`
	Username    string    `json:"username"`
	Location    Location  `json:"location"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// RecentFeedSize is the number of entries in the recent-emergencies feed.
const RecentFeedSize = 5

// EventStore is the persistence interface for users and emergency events.
type EventStore interface {
	// CreateOrUpdateUser upserts a user profile. An existing profile keeps
	// its original CreatedAt.
	CreateOrUpdateUser(ctx context.Context, user User) error

	// GetUser returns the profile for ownerKey along with all of the user's
	// events in creation order. Returns apperr.NotFoundError if no profile
	// exists.
	GetUser(ctx context.Context, ownerKey string) (*Profile, error)

	// AppendEvent stores a new event under ownerKey, assigning event.ID.
	// A missing profile is created with the owner key as username, matching
	// the first-report-registers-the-user behavior clients rely on.
	AppendEvent(ctx context.Context, ownerKey string, event *EmergencyEvent) error

	// GetEvent returns a single event. Returns apperr.NotFoundError if the
	// event does not exist.
	GetEvent(ctx context.Context, ownerKey, eventID string) (*EmergencyEvent, error)

	// MergeEventFields applies a field-level update to an existing event in
	// a single atomic write. Fields not named in the update are untouched,
	// regardless of concurrent merges to the same event. Returns
	// apperr.NotFoundError if the event does not exist.
	MergeEventFields(ctx context.Context, ownerKey, eventID string, update EventUpdate) error

	// ListUsersWithEvents returns every user that has at least one event,
	// each with their full event list. Used by the all-emergencies dump.
	ListUsersWithEvents(ctx context.Context) ([]Profile, error)

	// MostRecentEvents returns up to n events across all users, newest first.
	MostRecentEvents(ctx context.Context, n int) ([]RecentEvent, error)
}

// sortEventsNewestFirst orders events by timestamp descending. Ties keep a
// stable order so repeated reads render the same feed.
func sortEventsNewestFirst(events []EmergencyEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}

// sortEventsOldestFirst orders events by timestamp ascending, the creation
// order shown on profiles.
func sortEventsOldestFirst(events []EmergencyEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// sortProfilesByUsername gives multi-user listings a stable order.
func sortProfilesByUsername(profiles []Profile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].User.Username != profiles[j].User.Username {
			return profiles[i].User.Username < profiles[j].User.Username
		}
		return profiles[i].User.OwnerKey < profiles[j].User.OwnerKey
	})
}

// topRecent flattens events into feed entries, newest first, capped at n.
func topRecent(events []EmergencyEvent, n int) []RecentEvent {
	sortEventsNewestFirst(events)
	if n > len(events) {
		n = len(events)
	}
	recent := make([]RecentEvent, 0, n)
	for _, e := range events[:n] {
		recent = append(recent, RecentEvent{
			EventID:     e.ID,
			Username:    e.Username,
			Location:    e.Location,
			Description: e.Description,
			Timestamp:   e.Timestamp,
		})
	}
	return recent
}
