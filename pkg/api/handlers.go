package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/workflow"

	"github.com/gin-gonic/gin"
)

// pageSummary はページ一覧の1件です。
type pageSummary struct {
	PageNumber int                     `json:"page_number"`
	Layout     domain.PageLayout       `json:"layout"`
	Issues     []domain.LetteringIssue `json:"issues,omitempty"`
	ImageURL   string                  `json:"image_url"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

type regenerateReq struct {
	Modifications domain.PanelModifications `json:"modifications"`
	Seed          *int64                    `json:"seed,omitempty"`
}

type regenerateResp struct {
	Panel        *domain.GeneratedPanel    `json:"panel,omitempty"`
	Status       domain.RegenerationStatus `json:"status"`
	Regeneration domain.RegenerationJob    `json:"regeneration"`
}

func (h *Handler) createJob(c *gin.Context) {
	var req workflow.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json: "+err.Error())
		return
	}
	req.ProjectID = strings.TrimSpace(req.ProjectID)

	job, err := h.svc.Start(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Location", "/api/v1/jobs/"+job.ID)
	c.JSON(http.StatusAccepted, job)
}

func (h *Handler) getJob(c *gin.Context) {
	job, err := h.svc.Job(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) cancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Cancel(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": id, "status": "cancelling"})
}

func (h *Handler) listPages(c *gin.Context) {
	id := c.Param("id")
	recs, err := h.svc.Pages(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]pageSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, pageSummary{
			PageNumber: r.PageNumber,
			Layout:     r.Layout,
			Issues:     r.Issues,
			ImageURL:   fmt.Sprintf("/api/v1/jobs/%s/pages/%d/image", id, r.PageNumber),
			UpdatedAt:  r.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "pages": out})
}

func (h *Handler) pageImage(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("page"))
	if err != nil || n < 1 {
		badRequest(c, "page must be a positive integer")
		return
	}
	rec, err := h.svc.Page(c.Request.Context(), c.Param("id"), n)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", rec.Image)
}

func (h *Handler) regeneratePanel(c *gin.Context) {
	var req regenerateReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid json: "+err.Error())
			return
		}
	}

	regenReq := domain.RegenerationRequest{
		PanelID:       c.Param("id"),
		Modifications: req.Modifications,
		Seed:          req.Seed,
	}

	// wait=true のときだけ完了まで待って結果のパネルを返します。
	if c.Query("wait") == "true" {
		res, err := h.svc.Regenerate(c.Request.Context(), regenReq)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, regenerateResp{
			Panel:        res.Panel,
			Status:       res.Regeneration.Status,
			Regeneration: res.Regeneration,
		})
		return
	}

	sub, err := h.svc.StartRegeneration(c.Request.Context(), regenReq)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, regenerateResp{
		Status:       sub.Status,
		Regeneration: *sub,
	})
}

func (h *Handler) getRegeneration(c *gin.Context) {
	sub, err := h.svc.Regeneration(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}
