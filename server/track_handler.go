package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jamesdoliver/featune-sub001/logger"
	"github.com/jamesdoliver/featune-sub001/model"
)

// PublishTrackRequest is the creator's track submission. Prices are in
// cents; a zero or missing price means the track is not offered under that
// license type.
type PublishTrackRequest struct {
	Title             string `json:"title"`
	Genre             string `json:"genre"`
	LicenseMode       string `json:"licenseMode"`
	LicenseLimit      int    `json:"licenseLimit"`
	PriceNonExclusive int64  `json:"priceNonExclusive"`
	PriceExclusive    int64  `json:"priceExclusive"`
}

// PublishTrackHandler creates a track in pending state awaiting moderation.
func (h *APIHandler) PublishTrackHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req PublishTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}

	switch req.LicenseMode {
	case model.LicenseModeUnlimited, model.LicenseModeLimited:
		if req.PriceNonExclusive <= 0 {
			writeError(w, http.StatusBadRequest, "A non-exclusive price is required for this license mode")
			return
		}
	case model.LicenseModeExclusive:
		if req.PriceExclusive <= 0 {
			writeError(w, http.StatusBadRequest, "An exclusive price is required for this license mode")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "License mode must be unlimited, limited or exclusive")
		return
	}

	if req.LicenseMode == model.LicenseModeLimited && req.LicenseLimit <= 0 {
		writeError(w, http.StatusBadRequest, "A positive license limit is required for limited mode")
		return
	}

	track := &model.Track{
		CreatorID:    creatorID,
		Title:        req.Title,
		Genre:        req.Genre,
		LicenseMode:  req.LicenseMode,
		LicenseLimit: req.LicenseLimit,
		Status:       model.TrackStatusPending,
	}
	if req.PriceNonExclusive > 0 {
		track.PriceNonExclusive = sql.NullInt64{Int64: req.PriceNonExclusive, Valid: true}
	}
	if req.PriceExclusive > 0 {
		track.PriceExclusive = sql.NullInt64{Int64: req.PriceExclusive, Valid: true}
	}

	trackID, err := h.trackRepo.CreateTrack(r.Context(), track)
	if err != nil {
		logger.Error("Failed to create track", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create track")
		return
	}
	track.ID = trackID

	logger.Info("Track published",
		logger.Int64("trackId", trackID),
		logger.Int64("creatorId", creatorID),
		logger.String("licenseMode", track.LicenseMode))

	writeJSON(w, http.StatusCreated, track)
}

// GetMyTracksHandler returns the authenticated creator's tracks.
func (h *APIHandler) GetMyTracksHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	tracks, err := h.trackRepo.GetTracksByCreatorID(r.Context(), creatorID)
	if err != nil {
		logger.Error("Failed to get creator tracks", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get tracks")
		return
	}

	writeJSON(w, http.StatusOK, tracks)
}

// ApproveTrackHandler moves a pending track to approved.
func (h *APIHandler) ApproveTrackHandler(w http.ResponseWriter, r *http.Request) {
	h.moderateTrack(w, r, model.TrackStatusApproved)
}

// RejectTrackHandler moves a pending track to rejected.
func (h *APIHandler) RejectTrackHandler(w http.ResponseWriter, r *http.Request) {
	h.moderateTrack(w, r, model.TrackStatusRejected)
}

func (h *APIHandler) moderateTrack(w http.ResponseWriter, r *http.Request, status string) {
	vars := mux.Vars(r)
	trackID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid track ID")
		return
	}

	track, err := h.trackRepo.GetTrackByID(r.Context(), trackID)
	if err != nil {
		logger.Error("Failed to get track", logger.Int64("trackId", trackID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get track")
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}
	if track.Status != model.TrackStatusPending {
		writeError(w, http.StatusConflict, "Track is not pending moderation")
		return
	}

	if err := h.trackRepo.UpdateTrackStatus(r.Context(), trackID, status); err != nil {
		logger.Error("Failed to update track status", logger.Int64("trackId", trackID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to update track status")
		return
	}

	logger.Info("Track moderated",
		logger.Int64("trackId", trackID),
		logger.String("status", status))

	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
