package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/domain"
)

type handlers struct {
	deps Deps
}

func participantID(c *gin.Context) domain.ParticipantID {
	return domain.ParticipantID(c.GetString("client_token"))
}

type renameRequest struct {
	Name string `json:"name" binding:"required,max=36"`
}

type meResponse struct {
	ID    domain.ParticipantID `json:"id"`
	Name  string               `json:"name,omitempty"`
	Rooms []domain.RoomID      `json:"rooms"`
}

func (h *handlers) me(c *gin.Context) {
	pid := participantID(c)
	name, _ := sessions.Default(c).Get("name").(string)
	rooms := h.deps.Registry.RoomsOf(pid)
	if rooms == nil {
		rooms = []domain.RoomID{}
	}
	c.JSON(http.StatusOK, meResponse{ID: pid, Name: name, Rooms: rooms})
}

// rename keeps the display name in the cookie session.
func (h *handlers) rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	p := domain.Participant{ID: participantID(c)}
	if err := p.SetName(req.Name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := sessions.Default(c)
	sess.Set("name", p.Name)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	c.JSON(http.StatusOK, meResponse{ID: p.ID, Name: p.Name, Rooms: h.deps.Registry.RoomsOf(p.ID)})
}

func (h *handlers) rooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.deps.Registry.Rooms()})
}

func (h *handlers) participants(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	members := h.deps.Registry.Members(id)
	if members == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": id, "participants": members})
}

type createInvitationRequest struct {
	RoomID string `json:"room_id" binding:"required,max=128"`
	To     string `json:"to" binding:"required,max=64"`
}

func (h *handlers) createInvitation(c *gin.Context) {
	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, err := h.deps.Invites.Create(c.Request.Context(), domain.RoomID(req.RoomID), participantID(c), domain.ParticipantID(req.To))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *handlers) pendingInvitations(c *gin.Context) {
	list, err := h.deps.Invites.Pending(c.Request.Context(), participantID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []domain.Invitation{}
	}
	c.JSON(http.StatusOK, gin.H{"invitations": list})
}

func (h *handlers) acceptInvitation(c *gin.Context) {
	h.answerInvitation(c, true)
}

func (h *handlers) declineInvitation(c *gin.Context) {
	h.answerInvitation(c, false)
}

func (h *handlers) answerInvitation(c *gin.Context, accept bool) {
	ctx := c.Request.Context()
	id := domain.InvitationID(c.Param("id"))

	inv, err := h.deps.Invites.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if inv.To != participantID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the recipient"})
		return
	}

	var res *domain.Invitation
	if accept {
		res, err = h.deps.Invites.Accept(ctx, id)
	} else {
		res, err = h.deps.Invites.Decline(ctx, id)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	if res == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "invitation is no longer pending"})
		return
	}
	c.JSON(http.StatusOK, res)
}

type tokenRequest struct {
	RoomName string `json:"roomName" binding:"required"`
	Identity string `json:"identity" binding:"required"`
}

func (h *handlers) token(c *gin.Context) {
	if h.deps.Tokens == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "relay credentials not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room name and identity are required"})
		return
	}
	token, err := h.deps.Tokens.Issue(c.Request.Context(), req.RoomName, domain.ParticipantID(req.Identity))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "identity": req.Identity})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvitationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrSelfInvitation),
		errors.Is(err, domain.ErrRoomIDEmpty),
		errors.Is(err, domain.ErrParticipantIDEmpty),
		errors.Is(err, domain.ErrParticipantIDTooLong):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
