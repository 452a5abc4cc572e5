package consolehttp

import (
	"errors"
	"net/http"

	"querydeck/internal/controller"
	"querydeck/internal/logger"
	"querydeck/internal/query"

	"github.com/gin-gonic/gin"
)

// Router serves the /api group.
type Router struct {
	submitter Submitter
	models    ModelSource
}

func NewRouter(submitter Submitter, models ModelSource) *Router {
	return &Router{submitter: submitter, models: models}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/submit", r.handleSubmit)
	group.GET("/slots", r.handleSlots)
	group.GET("/models", r.handleModels)
}

func (r *Router) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	sub, err := r.submitter.Submit(c.Request.Context(), req.Prompt)
	if err != nil {
		if errors.Is(err, controller.ErrBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if ve, ok := query.AsValidationError(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Reason})
			return
		}
		logger.Errorf("[api] submit failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, submitResponse{SubmissionID: sub.ID, Generation: uint64(sub.Generation)})
}

func (r *Router) handleSlots(c *gin.Context) {
	status := r.submitter.Status()
	snap := status.Snapshot
	resp := slotsResponse{
		SubmissionID:  status.SubmissionID,
		Generation:    uint64(snap.Generation),
		SubmitEnabled: status.SubmitEnabled,
		Done:          snap.Done(),
		Slots:         make([]slotView, 0, len(snap.Slots)),
	}
	for _, st := range snap.Slots {
		resp.Slots = append(resp.Slots, slotView{
			ID:      string(st.ID),
			Label:   st.Label,
			State:   st.Result.State.String(),
			Text:    st.Result.Text,
			Message: st.Result.Message,
			Display: st.Result.Display(),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleModels(c *gin.Context) {
	out := make([]modelView, 0)
	if r.models != nil {
		for _, m := range r.models.Models() {
			out = append(out, modelView{Name: m.Name, Provider: m.Provider.Name, Label: m.Provider.Label})
		}
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}
