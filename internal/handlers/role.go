package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type roleRequest struct {
	Name string `json:"name" binding:"required"`
}

type renameRoleRequest struct {
	Name    string `json:"name" binding:"required"`
	NewName string `json:"new_name" binding:"required"`
}

type userRoleRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// RoleCrud multiplexes /role_crud the way the route is shaped: one
// admin-gated path, method picks the operation.
func (h HandlerSet) RoleCrud(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodGet:
		h.listRoles(c)
	case http.MethodPost:
		h.createRole(c)
	case http.MethodPut:
		h.renameRole(c)
	case http.MethodDelete:
		h.deleteRole(c)
	default:
		respondError(c, http.StatusMethodNotAllowed, "bad_request", "unsupported method")
	}
}

func (h HandlerSet) listRoles(c *gin.Context) {
	roles, err := h.roles.ListRoles(c.Request.Context())
	if err != nil {
		mapServiceError(c, err)
		return
	}

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	c.JSON(http.StatusOK, gin.H{"roles": names})
}

func (h HandlerSet) createRole(c *gin.Context) {
	var req roleRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := h.roles.CreateRole(c.Request.Context(), req.Name)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"role_id": role.ID, "name": role.Name})
}

func (h HandlerSet) renameRole(c *gin.Context) {
	var req renameRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.roles.RenameRole(c.Request.Context(), req.Name, req.NewName); err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"name": req.NewName})
}

func (h HandlerSet) deleteRole(c *gin.Context) {
	var req roleRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.roles.DeleteRole(c.Request.Context(), req.Name); err != nil {
		mapServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) AssignUserRole(c *gin.Context) {
	var req userRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.roles.AssignRole(c.Request.Context(), req.UserID, req.Role); err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "role assigned"})
}

func (h HandlerSet) UnassignUserRole(c *gin.Context) {
	var req userRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.roles.UnassignRole(c.Request.Context(), req.UserID, req.Role); err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "role removed"})
}

func (h HandlerSet) GetUserRoles(c *gin.Context) {
	userID := c.Param("user")

	roles, err := h.roles.RolesForUser(c.Request.Context(), userID)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	c.JSON(http.StatusOK, gin.H{"roles": names})
}
