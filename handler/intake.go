// Package handler implements the HTTP surface: request decoding,
// required-field validation, dispatch into the intake router, structured
// logging, and JSON response writing.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/pyandcpp-coder/User-Validation-Scoring/intake"
)

// IntakeHandler exposes the intake router over HTTP.
type IntakeHandler struct {
	logger zerolog.Logger
	router *intake.Router
}

// NewIntakeHandler builds an IntakeHandler.
func NewIntakeHandler(logger zerolog.Logger, router *intake.Router) *IntakeHandler {
	return &IntakeHandler{logger: logger, router: router}
}

type interactionBody struct {
	InteractionType string          `json:"interactionType"`
	Data            json.RawMessage `json:"data,omitempty"`
}

type submitActionRequest struct {
	CreatorAddress    string          `json:"creatorAddress"`
	InteractorAddress string          `json:"interactorAddress"`
	Interaction       interactionBody `json:"Interaction"`
	WebhookURL        string          `json:"webhookUrl"`
}

type submitActionResponse struct {
	Approved     bool    `json:"aiAgentResponseApproved"`
	Significance float64 `json:"significanceScore"`
	Reason       string  `json:"reason"`
	FinalScore   float64 `json:"finalUserScore"`
}

var actionCategories = map[string]config.Category{
	"like":     config.CategoryLike,
	"comment":  config.CategoryComment,
	"tip":      config.CategoryTip,
	"crypto":   config.CategoryCrypto,
	"referral": config.CategoryReferral,
}

// SubmitAction handles POST /v1/submit_action.
func (h *IntakeHandler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var req submitActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body: "+err.Error())
		return
	}

	if req.InteractorAddress == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "interactorAddress is required")
		return
	}

	cat, ok := actionCategories[req.Interaction.InteractionType]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown interactionType: "+req.Interaction.InteractionType)
		return
	}

	result, err := h.router.SubmitAction(r.Context(), req.InteractorAddress, cat)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", req.InteractorAddress).Str("category", string(cat)).Msg("submit_action failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to apply interaction")
		return
	}

	h.logger.Info().
		Str("creator", req.CreatorAddress).
		Str("interactor", req.InteractorAddress).
		Str("category", string(cat)).
		Bool("approved", result.Approved).
		Float64("significance", result.Significance).
		Msg("submit_action processed")

	writeJSON(w, http.StatusOK, submitActionResponse{
		Approved:     result.Approved,
		Significance: result.Significance,
		Reason:       result.Reason,
		FinalScore:   result.FinalScore,
	})
}

type submitPostResponse struct {
	Status string `json:"status"`
}

// SubmitPost handles POST /v1/submit_post. It accepts both a JSON body
// and a multipart form (multipart lets an image file ride alongside the
// text fields).
func (h *IntakeHandler) SubmitPost(w http.ResponseWriter, r *http.Request) {
	var creator, interactor, content, postID, webhookURL string
	var image []byte

	contentType := r.Header.Get("Content-Type")
	if isMultipart(contentType) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse multipart form: "+err.Error())
			return
		}
		creator = r.FormValue("creatorAddress")
		interactor = r.FormValue("interactorAddress")
		content = r.FormValue("data")
		postID = r.FormValue("post_id")
		webhookURL = r.FormValue("webhookUrl")
		if file, _, err := r.FormFile("image"); err == nil {
			defer file.Close()
			image, _ = io.ReadAll(file)
		}
	} else {
		var body struct {
			CreatorAddress    string `json:"creatorAddress"`
			InteractorAddress string `json:"interactorAddress"`
			Data              string `json:"data"`
			PostID            string `json:"post_id"`
			WebhookURL        string `json:"webhookUrl"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body: "+err.Error())
			return
		}
		creator, interactor, content, postID, webhookURL = body.CreatorAddress, body.InteractorAddress, body.Data, body.PostID, body.WebhookURL
	}

	if interactor == "" || postID == "" || content == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "interactorAddress, post_id, and data are required")
		return
	}

	h.router.SubmitPost(creator, interactor, postID, content, webhookURL, image)

	h.logger.Info().Str("post_id", postID).Str("interactor", interactor).Msg("submit_post accepted")
	writeJSON(w, http.StatusAccepted, submitPostResponse{Status: "processing"})
}

type deletePostResponse struct {
	Status string `json:"status"`
	PostID string `json:"post_id"`
	UserID string `json:"user_id"`
}

// DeletePost handles DELETE /v1/delete/{post_id}?user_id=....
func (h *IntakeHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "post_id")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id query parameter is required")
		return
	}

	result, err := h.router.DeletePost(r.Context(), postID, userID)
	if err != nil {
		h.logger.Info().Str("post_id", postID).Str("user_id", userID).Err(err).Msg("delete_post not found")
		writeError(w, http.StatusNotFound, "not_found", "post not found")
		return
	}

	writeJSON(w, http.StatusOK, deletePostResponse{Status: "deleted", PostID: result.PostID, UserID: result.UserID})
}

func isMultipart(contentType string) bool {
	return strings.HasPrefix(contentType, "multipart/")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    errType,
			"message": message,
		},
	})
}
