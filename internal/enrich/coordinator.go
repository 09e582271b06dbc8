// Package enrich coordinates the event enrichment pipeline: create an event,
// attach media, run external analysis, and merge the results into the owner's
// stored record. The coordinator owns the ordering guarantees; durability and
// atomicity live in the store, and the analysis capabilities stay fallible
// collaborators behind small interfaces.
package enrich

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/safewatch/safewatch-server/internal/analysis"
	"github.com/safewatch/safewatch-server/internal/apperr"
	"github.com/safewatch/safewatch-server/internal/ingest"
	"github.com/safewatch/safewatch-server/internal/media"
	"github.com/safewatch/safewatch-server/internal/metrics"
	"github.com/safewatch/safewatch-server/internal/store"
)

// Describer turns event photos into a scene description.
type Describer interface {
	DescribeImages(ctx context.Context, images []analysis.ImageInput) (string, error)
}

// Scorer rates the emotional content of an uploaded photo.
type Scorer interface {
	Score(ctx context.Context, path string) (store.EmotionScores, error)
}

// Coordinator wires the enrichment pipeline together.
type Coordinator struct {
	Store     store.EventStore
	Media     media.Store
	Describer Describer
	Scorer    Scorer
}

// CreateEventRequest carries the validated inputs for a new event.
type CreateEventRequest struct {
	Location    store.Location
	Description string             // optional; placeholder used when empty
	Audio       *ingest.StagedFile // optional initial audio attachment
}

// CreateEvent validates the location, stores the event with a placeholder
// description, and attaches the optional audio clip. Returns the stored
// event with its assigned ID.
func (c *Coordinator) CreateEvent(ctx context.Context, ownerKey string, req CreateEventRequest) (*store.EmergencyEvent, error) {
	if ownerKey == "" {
		return nil, &apperr.ValidationError{Field: "owner", Reason: "missing owner key"}
	}
	if err := validateLocation(req.Location); err != nil {
		return nil, err
	}

	description := req.Description
	if description == "" {
		description = store.PendingDescription
	}

	event := &store.EmergencyEvent{
		Location:    req.Location,
		Description: description,
		Timestamp:   time.Now().UTC(),
	}
	if err := c.Store.AppendEvent(ctx, ownerKey, event); err != nil {
		return nil, err
	}

	if req.Audio != nil {
		if err := c.attachAudio(ctx, ownerKey, event, req.Audio); err != nil {
			// The event itself was created; report the attachment failure.
			return nil, err
		}
	}

	log.Info().
		Str("ownerKey", ownerKey).
		Str("eventId", event.ID).
		Bool("hasAudio", event.Audio != nil).
		Msg("Emergency event created")
	return event, nil
}

// attachAudio uploads the staged clip and merges it as the event's single
// audio attachment.
func (c *Coordinator) attachAudio(ctx context.Context, ownerKey string, event *store.EmergencyEvent, staged *ingest.StagedFile) error {
	body, err := staged.Bytes()
	if err != nil {
		return err
	}

	key, err := c.Media.Put(ctx, ownerKey, event.ID, staged.Name, staged.ContentType, body)
	if err != nil {
		return err
	}

	audio := &store.AudioAttachment{
		Key:         key,
		ContentType: staged.ContentType,
		Size:        staged.Size,
	}
	if err := c.Store.MergeEventFields(ctx, ownerKey, event.ID, store.EventUpdate{Audio: audio}); err != nil {
		return err
	}
	event.Audio = audio
	return nil
}

// AttachImages runs the full image enrichment path for one request: describe
// all staged photos in a single model call, upload the originals, and apply
// one atomic merge that appends the attachments and sets the description.
// On describer failure nothing is uploaded or merged.
func (c *Coordinator) AttachImages(ctx context.Context, ownerKey, eventID string, staged []*ingest.StagedFile) (string, error) {
	if len(staged) == 0 {
		return "", &apperr.ValidationError{Field: "images", Reason: "no files uploaded"}
	}

	// Surface unknown owner/event before paying for analysis.
	event, err := c.Store.GetEvent(ctx, ownerKey, eventID)
	if err != nil {
		return "", err
	}

	inputs := make([]analysis.ImageInput, 0, len(staged))
	bodies := make([][]byte, 0, len(staged))
	for _, s := range staged {
		body, err := s.Bytes()
		if err != nil {
			return "", err
		}
		bodies = append(bodies, body)
		inputs = append(inputs, analysis.ImageInput{MIMEType: s.ContentType, Data: body})
	}

	rec := metrics.New(metrics.Namespace).Dimension("Operation", "describe")
	defer rec.Flush()
	rec.Property("eventId", eventID).Property("imageCount", len(staged))

	describeStart := time.Now()
	description, err := c.Describer.DescribeImages(ctx, inputs)
	rec.Metric("DescribeLatencyMs", float64(time.Since(describeStart).Milliseconds()), metrics.UnitMilliseconds)
	if err != nil {
		rec.Count("DescribeFailures")
		return "", err
	}

	// Attachments keep receipt order; the sequence number continues from the
	// images already on the event.
	attachments := make([]store.ImageAttachment, 0, len(staged))
	for i, s := range staged {
		filename := fmt.Sprintf("%d-%s", len(event.Images)+i+1, s.Name)
		key, err := c.Media.Put(ctx, ownerKey, eventID, filename, s.ContentType, bodies[i])
		if err != nil {
			return "", err
		}
		attachments = append(attachments, store.ImageAttachment{
			Key:         key,
			ContentType: s.ContentType,
			Size:        s.Size,
			Thumbnail:   ingest.ThumbnailForStaged(s),
			Capture:     ingest.ExtractCapture(s.Path),
		})
	}

	mergeStart := time.Now()
	update := store.EventUpdate{
		Description:  &description,
		AppendImages: attachments,
	}
	if err := c.Store.MergeEventFields(ctx, ownerKey, eventID, update); err != nil {
		return "", err
	}
	rec.Metric("MergeLatencyMs", float64(time.Since(mergeStart).Milliseconds()), metrics.UnitMilliseconds)

	log.Info().
		Str("ownerKey", ownerKey).
		Str("eventId", eventID).
		Int("images", len(attachments)).
		Int("descriptionLength", len(description)).
		Msg("Images attached and description merged")
	return description, nil
}

// ScorePhoto runs the emotion scorer over one staged photo and merges the
// scores into the event. A scorer failure leaves previously persisted scores
// untouched.
func (c *Coordinator) ScorePhoto(ctx context.Context, ownerKey, eventID string, staged *ingest.StagedFile) (store.EmotionScores, error) {
	var zero store.EmotionScores
	if staged == nil {
		return zero, &apperr.ValidationError{Field: "photo", Reason: "missing upload"}
	}

	if _, err := c.Store.GetEvent(ctx, ownerKey, eventID); err != nil {
		return zero, err
	}

	rec := metrics.New(metrics.Namespace).Dimension("Operation", "score")
	defer rec.Flush()
	rec.Property("eventId", eventID)

	scoreStart := time.Now()
	scores, err := c.Scorer.Score(ctx, staged.Path)
	rec.Metric("ScoringLatencyMs", float64(time.Since(scoreStart).Milliseconds()), metrics.UnitMilliseconds)
	if err != nil {
		rec.Count("ScoringFailures")
		return zero, err
	}

	update := store.EventUpdate{Emotions: &scores}
	if err := c.Store.MergeEventFields(ctx, ownerKey, eventID, update); err != nil {
		return zero, err
	}

	log.Info().
		Str("ownerKey", ownerKey).
		Str("eventId", eventID).
		Float64("aggression", scores.Aggression).
		Float64("hostility", scores.Hostility).
		Float64("frustration", scores.Frustration).
		Msg("Emotion scores merged")
	return scores, nil
}

// Profile returns the owner's full record.
func (c *Coordinator) Profile(ctx context.Context, ownerKey string) (*store.Profile, error) {
	if ownerKey == "" {
		return nil, &apperr.ValidationError{Field: "identityKey", Reason: "missing identity key"}
	}
	return c.Store.GetUser(ctx, ownerKey)
}

// RecentEvents returns the dashboard feed, newest first.
func (c *Coordinator) RecentEvents(ctx context.Context) ([]store.RecentEvent, error) {
	return c.Store.MostRecentEvents(ctx, store.RecentFeedSize)
}

// AllEmergencies returns every user that has reported events.
func (c *Coordinator) AllEmergencies(ctx context.Context) ([]store.Profile, error) {
	return c.Store.ListUsersWithEvents(ctx)
}

// validateLocation rejects missing or non-finite coordinates and values
// outside the WGS84 range.
func validateLocation(loc store.Location) error {
	if math.IsNaN(loc.Latitude) || math.IsInf(loc.Latitude, 0) {
		return &apperr.ValidationError{Field: "latitude", Reason: "must be a finite number"}
	}
	if math.IsNaN(loc.Longitude) || math.IsInf(loc.Longitude, 0) {
		return &apperr.ValidationError{Field: "longitude", Reason: "must be a finite number"}
	}
	if loc.Latitude < -90 || loc.Latitude > 90 {
		return &apperr.ValidationError{Field: "latitude", Reason: "out of range"}
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		return &apperr.ValidationError{Field: "longitude", Reason: "out of range"}
	}
	return nil
}
