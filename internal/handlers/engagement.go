package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jesadaho/asset-ace-sub000/internal/engagement"
)

// EngagementHandler serves invites, contact requests and follows.
type EngagementHandler struct {
	svc *engagement.Service
}

func NewEngagementHandler(svc *engagement.Service) *EngagementHandler {
	return &EngagementHandler{svc: svc}
}

type inviteRequest struct {
	InviteeName string `json:"invitee_name"`
}

// IssueInvite handles POST /properties/:id/invite
func (h *EngagementHandler) IssueInvite(c *gin.Context) {
	var req inviteRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	inv, err := h.svc.IssueInvite(c.Request.Context(), UserID(c), c.Param("id"), req.InviteeName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

type acceptInviteRequest struct {
	Token string `json:"token" binding:"required"`
}

// AcceptInvite handles POST /properties/:id/accept-invite
func (h *EngagementHandler) AcceptInvite(c *gin.Context) {
	var req acceptInviteRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.svc.AcceptInvite(c.Request.Context(), UserID(c), c.Param("id"), req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// RequestContact handles POST /properties/:id/contact-request
func (h *EngagementHandler) RequestContact(c *gin.Context) {
	contact, err := h.svc.RequestContact(c.Request.Context(), UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

// ListContactRequests handles GET /properties/:id/contact-requests
func (h *EngagementHandler) ListContactRequests(c *gin.Context) {
	requests, err := h.svc.ListContactRequests(c.Request.Context(), UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests, "count": len(requests)})
}

// ToggleFollow handles POST /properties/:id/follow
func (h *EngagementHandler) ToggleFollow(c *gin.Context) {
	following, err := h.svc.ToggleFollow(c.Request.Context(), UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": following})
}

// FollowStatus handles GET /properties/:id/follow
func (h *EngagementHandler) FollowStatus(c *gin.Context) {
	following, err := h.svc.IsFollowing(c.Request.Context(), UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": following})
}
