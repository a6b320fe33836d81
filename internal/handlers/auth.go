package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"authgate/api/internal/middleware"
	"authgate/api/internal/service"
)

type signupRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	Password2 string `json:"password2" binding:"required"`
	Name      string `json:"name" binding:"required"`
}

type updateUserRequest struct {
	Email     string `json:"email" binding:"omitempty,email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	Name      string `json:"name"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserCrud serves both halves of /user_crud: POST creates an account
// without authentication, PUT updates the authenticated caller.
func (h HandlerSet) UserCrud(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodPost:
		h.signup(c)
	case http.MethodPut:
		h.updateUser(c)
	default:
		respondError(c, http.StatusMethodNotAllowed, "bad_request", "unsupported method")
	}
}

func (h HandlerSet) signup(c *gin.Context) {
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.auth.Signup(c.Request.Context(), service.SignupInput{
		Email:     req.Email,
		Password:  req.Password,
		Password2: req.Password2,
		Name:      req.Name,
	})
	if err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user_id": user.ID, "email": user.Email})
}

func (h HandlerSet) updateUser(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "access token required")
		return
	}

	var req updateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.auth.UpdateUser(c.Request.Context(), service.UpdateUserInput{
		UserID:    claims.UserID,
		Email:     req.Email,
		Password:  req.Password,
		Password2: req.Password2,
		Name:      req.Name,
	})
	if err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"user_id": user.ID, "email": user.Email, "name": user.Name})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		DeviceID: middleware.DeviceID(c),
	})
	if err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h HandlerSet) Logout(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "token required")
		return
	}

	if err := h.auth.Logout(c.Request.Context(), claims); err != nil {
		respondError(c, http.StatusInternalServerError, "internal_server_error", "logout failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "tokens revoked"})
}

func (h HandlerSet) LogoutAll(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "token required")
		return
	}

	if err := h.auth.LogoutAll(c.Request.Context(), claims); err != nil {
		respondError(c, http.StatusInternalServerError, "internal_server_error", "logout failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "all tokens revoked"})
}

func (h HandlerSet) Refresh(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "refresh token required")
		return
	}
	raw := c.GetString(middleware.CtxRawToken)

	pair, err := h.auth.Refresh(c.Request.Context(), claims, raw)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "internal_server_error", "refresh failed")
		return
	}

	c.JSON(http.StatusCreated, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

type historyEntry struct {
	DeviceID   string `json:"device_id"`
	Outcome    string `json:"outcome"`
	OccurredAt string `json:"occurred_at"`
}

func (h HandlerSet) HistoryAuth(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "access token required")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(service.DefaultHistoryPageSize)))

	records, err := h.auth.History(c.Request.Context(), claims.UserID, page, size)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "internal_server_error", "history lookup failed")
		return
	}

	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			DeviceID:   rec.DeviceID,
			Outcome:    string(rec.Outcome),
			OccurredAt: rec.OccurredAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	c.JSON(http.StatusOK, gin.H{"history_auth": entries})
}

// CheckUser answers other services asking whether an access token is
// good. The auth guard already did the work.
func (h HandlerSet) CheckUser(c *gin.Context) {
	h.log.Debug().Str("user_agent", c.GetHeader("User-Agent")).Msg("check_user")
	c.JSON(http.StatusOK, gin.H{})
}

func (h HandlerSet) CheckUserIsSubscriber(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{})
}

func (h HandlerSet) GetUserByID(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		respondError(c, http.StatusBadRequest, "bad_request", "id query parameter is required")
		return
	}

	user, err := h.auth.GetUserByID(c.Request.Context(), id)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":  user.ID,
		"username": user.Name,
		"email":    user.Email,
	})
}
