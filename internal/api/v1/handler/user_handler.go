package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ranikadev/baas-bot/internal/api/v1/dto"
	"github.com/ranikadev/baas-bot/internal/model"
	"github.com/ranikadev/baas-bot/internal/service"
	"github.com/ranikadev/baas-bot/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const historyPreviewRunes = 100

type UserHandler struct {
	userService    service.UserService
	postingService service.PostingService
	validate       *validator.Validate
	logger         zerolog.Logger
}

func NewUserHandler(userService service.UserService, postingService service.PostingService, v *validator.Validate, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		userService:    userService,
		postingService: postingService,
		validate:       v,
		logger:         logger.With().Str("handler", "UserHandler").Logger(),
	}
}

// RegisterRoutes mounts v1 user routes. triggerLimit wraps the manual
// trigger and publish endpoints.
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMw, triggerLimit func(http.Handler) http.Handler) {
	mux.Handle("POST /users", authMw(http.HandlerFunc(h.createUser)))
	mux.Handle("GET /users/{id}", authMw(http.HandlerFunc(h.getUser)))
	mux.Handle("POST /users/{id}/start", authMw(http.HandlerFunc(h.startBot)))
	mux.Handle("POST /users/{id}/stop", authMw(http.HandlerFunc(h.stopBot)))
	mux.Handle("POST /users/{id}/trigger", authMw(triggerLimit(http.HandlerFunc(h.trigger))))
	mux.Handle("POST /users/{id}/publish", authMw(triggerLimit(http.HandlerFunc(h.publishPending))))
	mux.Handle("PATCH /users/{id}/preferences", authMw(http.HandlerFunc(h.updatePreferences)))
	mux.Handle("GET /users/{id}/history", authMw(http.HandlerFunc(h.getHistory)))
}

// createUser godoc
// @Summary Register a bot user
// @Description Creates an active free-tier user and stores their X/Twitter credentials.
// @Tags users
// @Accept json
// @Produce json
// @Param user body dto.UserCreateDTO true "User creation request"
// @Success 201 {object} dto.UserResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 401 {string} string "unauthorized"
// @Failure 409 {string} string "username already registered"
// @Failure 500 {string} string "Failed to create user"
// @Router /users [post]
func (h *UserHandler) createUser(w http.ResponseWriter, r *http.Request) {
	var req dto.UserCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	creds := model.Credentials{
		APIKey:       req.Credentials.APIKey,
		APISecret:    req.Credentials.APISecret,
		AccessToken:  req.Credentials.AccessToken,
		AccessSecret: req.Credentials.AccessSecret,
	}
	var prefs model.Preferences
	if req.Preferences != nil {
		prefs = toPreferences(*req.Preferences)
	}

	u, err := h.userService.Create(r.Context(), req.Username, creds, prefs)
	if err != nil {
		h.writeError(w, err, "Failed to create user")
		return
	}
	h.writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// getUser godoc
// @Summary Get a bot user
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} dto.UserResponseDTO
// @Failure 400 {string} string "invalid user id"
// @Failure 404 {string} string "user not found"
// @Router /users/{id} [get]
func (h *UserHandler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	u, err := h.userService.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "Failed to get user")
		return
	}
	h.writeJSON(w, http.StatusOK, toUserResponse(u))
}

// startBot godoc
// @Summary Start the bot
// @Description Marks the user active and runs one cycle in the background.
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} dto.UserResponseDTO
// @Failure 404 {string} string "user not found"
// @Router /users/{id}/start [post]
func (h *UserHandler) startBot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	u, err := h.userService.Start(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "Failed to start bot")
		return
	}
	h.writeJSON(w, http.StatusOK, toUserResponse(u))
}

// stopBot godoc
// @Summary Stop the bot
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} dto.UserResponseDTO
// @Failure 404 {string} string "user not found"
// @Router /users/{id}/stop [post]
func (h *UserHandler) stopBot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	u, err := h.userService.Stop(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "Failed to stop bot")
		return
	}
	h.writeJSON(w, http.StatusOK, toUserResponse(u))
}

// trigger godoc
// @Summary Fetch and post now
// @Description Generates new content and runs the publish step immediately, ignoring posting hours.
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} dto.TriggerResponseDTO
// @Failure 404 {string} string "user not found"
// @Failure 409 {string} string "a cycle is already running for this user"
// @Failure 429 {string} string "rate limit exceeded"
// @Router /users/{id}/trigger [post]
func (h *UserHandler) trigger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	res, err := h.postingService.TriggerNow(r.Context(), id)
	h.writeCycle(w, res, err)
}

// publishPending godoc
// @Summary Publish the next pending post now
// @Description Runs only the publish step: the oldest pending post, or the fallback message when none is queued. Quota applies; posting hours do not.
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} dto.TriggerResponseDTO
// @Failure 404 {string} string "user not found"
// @Failure 409 {string} string "a cycle is already running for this user"
// @Failure 429 {string} string "rate limit exceeded"
// @Router /users/{id}/publish [post]
func (h *UserHandler) publishPending(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	res, err := h.postingService.RunCycle(r.Context(), id)
	h.writeCycle(w, res, err)
}

func (h *UserHandler) writeCycle(w http.ResponseWriter, res service.CycleResult, err error) {
	if err != nil {
		h.writeError(w, err, "Failed to run cycle")
		return
	}
	h.writeJSON(w, http.StatusOK, dto.TriggerResponseDTO{
		RunID:      res.RunID,
		Outcome:    string(res.Outcome),
		Published:  res.Published(),
		Generated:  res.Generated,
		DailyCount: res.DailyCount,
		PostID:     res.PostID,
		ExternalID: res.ExternalID,
	})
}

// updatePreferences godoc
// @Summary Update preferences
// @Description Merges the provided keys into the stored preferences.
// @Tags users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param preferences body dto.PreferencesDTO true "Preferences to change"
// @Success 200 {object} dto.UserResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 404 {string} string "user not found"
// @Router /users/{id}/preferences [patch]
func (h *UserHandler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	var req dto.PreferencesDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	u, err := h.userService.UpdatePreferences(r.Context(), id, toPreferences(req))
	if err != nil {
		h.writeError(w, err, "Failed to update preferences")
		return
	}
	h.writeJSON(w, http.StatusOK, toUserResponse(u))
}

// getHistory godoc
// @Summary Post history
// @Description Most recent posts first, content shortened to a preview.
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Param limit query int false "Max posts (default 50, max 100)"
// @Success 200 {object} dto.HistoryResponseDTO
// @Failure 400 {string} string "invalid limit"
// @Failure 404 {string} string "user not found"
// @Router /users/{id}/history [get]
func (h *UserHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	posts, err := h.userService.History(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, err, "Failed to get history")
		return
	}
	resp := dto.HistoryResponseDTO{Posts: make([]dto.HistoryItemDTO, 0, len(posts))}
	for _, p := range posts {
		resp.Posts = append(resp.Posts, dto.HistoryItemDTO{
			ID:         p.ID,
			Content:    util.Preview(p.Content, historyPreviewRunes),
			Status:     string(p.Status),
			PostedAt:   p.PostedAt,
			DailyCount: p.DailyCount,
			ExternalID: p.ExternalID,
			CreatedAt:  p.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *UserHandler) writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrUsernameTaken), errors.Is(err, service.ErrCycleInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrInvalidPreferences):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func (h *UserHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func toPreferences(req dto.PreferencesDTO) model.Preferences {
	var prefs model.Preferences
	if req.Prompt != nil {
		prompt := *req.Prompt
		prefs.Prompt = &prompt
	}
	if len(req.PostingHours) == 2 {
		hours := [2]int{req.PostingHours[0], req.PostingHours[1]}
		prefs.PostingHours = &hours
	}
	return prefs
}

func toUserResponse(u *model.User) dto.UserResponseDTO {
	return dto.UserResponseDTO{
		ID:               u.ID,
		Username:         u.Username,
		IsActive:         u.IsActive,
		SubscriptionTier: string(u.SubscriptionTier),
		Preferences: dto.PreferencesResponseDTO{
			Prompt:       u.Preferences.Prompt,
			PostingHours: u.Preferences.EffectivePostingHours(),
		},
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
