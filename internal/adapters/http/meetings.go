package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Lectern/internal/domain"
	"github.com/gin-gonic/gin"
)

type createMeetingRequest struct {
	Topic string `json:"topic"`
}

type modeRequest struct {
	Mode          string        `json:"mode"`
	ParticipantID domain.UserID `json:"participantId"`
}

type privateChatRequest struct {
	StudentID domain.UserID `json:"studentId"`
}

func (h *handlers) createMeeting(c *gin.Context) {
	caller := callerOf(c)
	if caller.Role != domain.RoleHost {
		abortWithError(c, domain.ErrNotHost)
		return
	}
	var req createMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Topic == "" {
		abortWithError(c, domain.ErrMissingField)
		return
	}
	u := domain.User{ID: caller.UserID, Username: caller.Username, Role: caller.Role}
	m, err := h.meetings.Create(c.Request.Context(), u, req.Topic)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *handlers) getMeeting(c *gin.Context) {
	m, err := h.meetings.Get(c.Request.Context(), domain.MeetingID(c.Param("id")))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type meetingOp func(ctx context.Context, id domain.MeetingID, caller domain.UserID) (*domain.Meeting, error)

// meetingAction adapts a caller-scoped lifecycle operation to a route.
func (h *handlers) meetingAction(op meetingOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := op(c.Request.Context(), domain.MeetingID(c.Param("id")), callerOf(c).UserID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

func (h *handlers) switchMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.ErrMissingField)
		return
	}
	var private bool
	switch req.Mode {
	case "private":
		if req.ParticipantID == "" {
			abortWithError(c, domain.ErrMissingField)
			return
		}
		private = true
	case "broadcast", "public":
	default:
		abortWithError(c, domain.ErrBadMode)
		return
	}
	m, err := h.meetings.SetPrivateMode(c.Request.Context(), domain.MeetingID(c.Param("id")), callerOf(c).UserID, private, req.ParticipantID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *handlers) startPrivateChat(c *gin.Context) {
	var req privateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.StudentID == "" {
		abortWithError(c, domain.ErrMissingField)
		return
	}
	m, rec, err := h.orch.StartPrivateChat(c.Request.Context(), domain.MeetingID(c.Param("id")), callerOf(c).UserID, req.StudentID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"meeting": m, "recording": rec})
}

func (h *handlers) endPrivateChat(c *gin.Context) {
	m, rec, err := h.orch.EndPrivateChat(c.Request.Context(), domain.MeetingID(c.Param("id")), callerOf(c).UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meeting": m, "recording": rec})
}
