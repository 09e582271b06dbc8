// Package api is the HTTP surface of the enrichment service. One route table
// serves both the standalone server and the Lambda adapter, so the two
// deployments can never drift apart.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/safewatch/safewatch-server/internal/apperr"
	"github.com/safewatch/safewatch-server/internal/enrich"
	"github.com/safewatch/safewatch-server/internal/ingest"
	"github.com/safewatch/safewatch-server/internal/media"
	"github.com/safewatch/safewatch-server/internal/store"
)

// maxMultipartMemory caps the in-memory portion of multipart parsing; larger
// parts spill to disk.
const maxMultipartMemory = 32 << 20

// Handler bundles the HTTP routes with their collaborators.
type Handler struct {
	coord *enrich.Coordinator
	media media.Store
}

// NewHandler builds the canonical route table wrapped in logging and CORS
// middleware.
func NewHandler(coord *enrich.Coordinator, mediaStore media.Store) http.Handler {
	h := &Handler{coord: coord, media: mediaStore}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /create-emergency-event/{owner}", h.handleCreateEvent)
	mux.HandleFunc("POST /add-emergency-image/{owner}/{eventId}", h.handleAddImages)
	mux.HandleFunc("POST /upload-photo/{owner}/{eventId}", h.handleUploadPhoto)
	mux.HandleFunc("GET /profile", h.handleProfile)
	mux.HandleFunc("GET /most-recent-emergencies", h.handleRecentEvents)
	mux.HandleFunc("GET /get-all-emergencies", h.handleAllEmergencies)
	mux.HandleFunc("POST /create-or-update-user", h.handleCreateOrUpdateUser)
	mux.HandleFunc("GET /media-url", h.handleMediaURL)
	mux.HandleFunc("GET /export-event/{owner}/{eventId}", h.handleExportEvent)
	mux.HandleFunc("GET /healthz", h.handleHealthz)

	return withLogging(withCORS(mux))
}

// --- Event creation ---

type locationPayload struct {
	Latitude  *coordinate `json:"latitude"`
	Longitude *coordinate `json:"longitude"`
}

type createEventPayload struct {
	Location    *locationPayload `json:"location"`
	Description string           `json:"description"`
}

func (h *Handler) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")

	req, release, err := h.parseCreateEvent(r)
	if release != nil {
		defer release()
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	event, err := h.coord.CreateEvent(r.Context(), owner, req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"emergencyId": event.ID})
}

// parseCreateEvent accepts the JSON body or the multipart variant that adds
// an audio clip alongside form-field coordinates.
func (h *Handler) parseCreateEvent(r *http.Request) (enrich.CreateEventRequest, func(), error) {
	var req enrich.CreateEventRequest

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return req, nil, &apperr.ValidationError{Field: "body", Reason: "malformed multipart form"}
		}

		lat, err := parseCoordinate(r.FormValue("latitude"))
		if err != nil {
			return req, nil, &apperr.ValidationError{Field: "latitude", Reason: err.Error()}
		}
		lon, err := parseCoordinate(r.FormValue("longitude"))
		if err != nil {
			return req, nil, &apperr.ValidationError{Field: "longitude", Reason: err.Error()}
		}
		req.Location = store.Location{Latitude: lat, Longitude: lon}
		req.Description = r.FormValue("description")

		if files := r.MultipartForm.File["audio"]; len(files) > 0 {
			staged, err := ingest.StageUpload(files[0], ingest.KindAudio)
			if err != nil {
				return req, nil, err
			}
			req.Audio = staged
			return req, staged.Release, nil
		}
		return req, nil, nil
	}

	var payload createEventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return req, nil, &apperr.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()}
	}
	if payload.Location == nil || payload.Location.Latitude == nil || payload.Location.Longitude == nil {
		return req, nil, &apperr.ValidationError{Field: "location", Reason: "latitude and longitude are required"}
	}

	req.Location = store.Location{
		Latitude:  float64(*payload.Location.Latitude),
		Longitude: float64(*payload.Location.Longitude),
	}
	req.Description = payload.Description
	return req, nil, nil
}

// --- Image attachment ---

func (h *Handler) handleAddImages(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	eventID := r.PathValue("eventId")

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		respondError(w, r, &apperr.ValidationError{Field: "body", Reason: "malformed multipart form"})
		return
	}

	staged, release, err := ingest.StageAll(r.MultipartForm.File["images"], ingest.KindImage)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer release()

	description, err := h.coord.AttachImages(r.Context(), owner, eventID, staged)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"description": description})
}

// --- Emotion scoring ---

func (h *Handler) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	eventID := r.PathValue("eventId")

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		respondError(w, r, &apperr.ValidationError{Field: "body", Reason: "malformed multipart form"})
		return
	}

	files := r.MultipartForm.File["photo"]
	if len(files) == 0 {
		respondError(w, r, &apperr.ValidationError{Field: "photo", Reason: "missing upload"})
		return
	}

	staged, err := ingest.StageUpload(files[0], ingest.KindImage)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer staged.Release()

	scores, err := h.coord.ScorePhoto(r.Context(), owner, eventID, staged)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]store.EmotionScores{"scores": scores})
}

// --- Reads ---

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.coord.Profile(r.Context(), r.URL.Query().Get("identityKey"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	recent, err := h.coord.RecentEvents(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if recent == nil {
		recent = []store.RecentEvent{}
	}
	respondJSON(w, http.StatusOK, recent)
}

func (h *Handler) handleAllEmergencies(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.coord.AllEmergencies(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []store.Profile{}
	}
	respondJSON(w, http.StatusOK, profiles)
}

// --- User upsert ---

type upsertUserPayload struct {
	IdentityKey string `json:"identityKey"`
	Username    string `json:"username"`
	Email       string `json:"email"`
}

func (h *Handler) handleCreateOrUpdateUser(w http.ResponseWriter, r *http.Request) {
	var payload upsertUserPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, r, &apperr.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()})
		return
	}
	if payload.IdentityKey == "" {
		respondError(w, r, &apperr.ValidationError{Field: "identityKey", Reason: "required"})
		return
	}
	if payload.Username == "" {
		respondError(w, r, &apperr.ValidationError{Field: "username", Reason: "required"})
		return
	}

	user := store.User{
		OwnerKey: payload.IdentityKey,
		Username: payload.Username,
		Email:    payload.Email,
	}
	if err := h.coord.Store.CreateOrUpdateUser(r.Context(), user); err != nil {
		respondError(w, r, err)
		return
	}

	log.Info().Str("identityKey", payload.IdentityKey).Str("username", payload.Username).Msg("User upserted")
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Media access ---

func (h *Handler) handleMediaURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		respondError(w, r, &apperr.ValidationError{Field: "key", Reason: "required"})
		return
	}

	url, err := h.media.PresignGet(r.Context(), key, media.DefaultURLExpiry)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func isMultipart(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	return len(contentType) >= 19 && contentType[:19] == "multipart/form-data"
}
