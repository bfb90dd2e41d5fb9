package handler

import (
	"encoding/json"
	"net/http"

	"github.com/vpetrenko/failtriage/internal/api/response"
	"github.com/vpetrenko/failtriage/internal/knowledge"
)

const fingerprintHexLen = 64

// FeedbackRequest is the body of POST /api/v1/kb/feedback.
type FeedbackRequest struct {
	EntrySlug        string `json:"entry_slug"`
	ErrorFingerprint string `json:"error_fingerprint"`
	Vote             string `json:"vote"`
	LaunchID         int64  `json:"launch_id,omitempty"`
	ClusterID        string `json:"cluster_id,omitempty"`
}

// FeedbackResponse reports the recorded vote. Created is false when the vote
// overwrote an earlier verdict on the same pairing.
type FeedbackResponse struct {
	EntrySlug        string `json:"entry_slug"`
	ErrorFingerprint string `json:"error_fingerprint"`
	Vote             string `json:"vote"`
	Created          bool   `json:"created"`
}

// NewFeedbackHandler returns an http.HandlerFunc recording reviewer votes on
// knowledge matches. A nil store means the knowledge backend has no write
// path (YAML) and the endpoint reports feedback as disabled.
func NewFeedbackHandler(store knowledge.FeedbackStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			response.Error(w, http.StatusServiceUnavailable, "FEEDBACK_DISABLED",
				"Feedback requires the postgres knowledge backend", nil)
			return
		}

		var req FeedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Request body must be valid JSON", nil)
			return
		}
		if msg := validateFeedback(req); msg != "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
			return
		}

		created, err := store.RecordVote(r.Context(), knowledge.FeedbackVote{
			EntrySlug:   req.EntrySlug,
			Fingerprint: req.ErrorFingerprint,
			Vote:        knowledge.Vote(req.Vote),
			LaunchID:    req.LaunchID,
			ClusterID:   req.ClusterID,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "FEEDBACK_WRITE_FAILED",
				err.Error(), nil)
			return
		}

		response.JSON(w, FeedbackResponse{
			EntrySlug:        req.EntrySlug,
			ErrorFingerprint: req.ErrorFingerprint,
			Vote:             req.Vote,
			Created:          created,
		})
	}
}

func validateFeedback(req FeedbackRequest) string {
	if req.EntrySlug == "" {
		return "entry_slug is required"
	}
	if len(req.ErrorFingerprint) != fingerprintHexLen {
		return "error_fingerprint must be a 64-character SHA-256 hex digest"
	}
	if !knowledge.ValidVote(knowledge.Vote(req.Vote)) {
		return "vote must be like or dislike"
	}
	return ""
}
