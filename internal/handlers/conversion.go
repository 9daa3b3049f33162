package handlers

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/inkmark/inkmark-backend/internal/apierr"
	"github.com/inkmark/inkmark-backend/internal/logger"
	"github.com/inkmark/inkmark-backend/internal/middleware"
	"github.com/inkmark/inkmark-backend/internal/services"
	"github.com/inkmark/inkmark-backend/internal/types"
)

type ConversionHandler struct {
	log               *logger.Logger
	conversionService services.ConversionService
}

func NewConversionHandler(log *logger.Logger, csvc services.ConversionService) *ConversionHandler {
	return &ConversionHandler{
		log:               log.With("handler", "ConversionHandler"),
		conversionService: csvc,
	}
}

type convertRequest struct {
	Filename string `json:"filename"`
	FileData string `json:"fileData"`
}

type convertResponse struct {
	ConversionID        string                     `json:"conversionId"`
	Markdown            string                     `json:"markdown"`
	Images              []types.ImageDescriptor    `json:"images"`
	TotalPages          int                        `json:"totalPages"`
	FiguresExtracted    int                        `json:"figuresExtracted"`
	ConversionMethod    string                     `json:"conversionMethod"`
	FigureQuestionLinks []types.FigureQuestionLink `json:"figureQuestionLinks"`
}

// POST /api/convert
func (h *ConversionHandler) Convert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondAPIError(c, apierr.InvalidRequest("invalid request body: %v", err))
		return
	}
	data, err := decodeFileData(req.FileData)
	if err != nil {
		RespondAPIError(c, apierr.InvalidRequest("invalid base64 file data: %v", err))
		return
	}

	rec, err := h.conversionService.Submit(c.Request.Context(), middleware.CallerID(c), req.Filename, data)
	if err != nil {
		RespondAPIError(c, err)
		return
	}

	resp := convertResponse{
		ConversionID:        rec.ID,
		Images:              rec.Images.Data(),
		FigureQuestionLinks: rec.FigureQuestionLinks.Data(),
	}
	if rec.MarkdownContent != nil {
		resp.Markdown = *rec.MarkdownContent
	}
	if rec.TotalPages != nil {
		resp.TotalPages = *rec.TotalPages
	}
	if rec.FiguresExtracted != nil {
		resp.FiguresExtracted = *rec.FiguresExtracted
	}
	if rec.ConversionMethod != nil {
		resp.ConversionMethod = *rec.ConversionMethod
	}
	RespondOK(c, resp)
}

// GET /api/conversions/:id
func (h *ConversionHandler) Get(c *gin.Context) {
	rec, err := h.conversionService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, rec)
}

// GET /api/conversions?limit=&offset=
func (h *ConversionHandler) History(c *gin.Context) {
	limit, err := queryInt(c, "limit", 20)
	if err != nil || limit < 1 || limit > 100 {
		RespondAPIError(c, apierr.InvalidRequest("limit must be an integer between 1 and 100"))
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		RespondAPIError(c, apierr.InvalidRequest("offset must be a non-negative integer"))
		return
	}

	page, err := h.conversionService.ListHistory(c.Request.Context(), limit, offset)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, page)
}

// DELETE /api/conversions/:id
func (h *ConversionHandler) Delete(c *gin.Context) {
	if err := h.conversionService.Delete(c.Request.Context(), middleware.CallerID(c), c.Param("id")); err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

// POST /api/conversions/:id/reanalyze-links
func (h *ConversionHandler) ReanalyzeLinks(c *gin.Context) {
	links, err := h.conversionService.ReanalyzeLinks(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	if links == nil {
		links = []types.FigureQuestionLink{}
	}
	RespondOK(c, gin.H{"figureQuestionLinks": links})
}

// GET /api/conversions/:id/markdown
func (h *ConversionHandler) DownloadMarkdown(c *gin.Context) {
	rec, err := h.conversionService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	if rec.Status != types.ConversionStatusCompleted || rec.MarkdownContent == nil {
		RespondAPIError(c, apierr.IncompleteData("conversion %s has no markdown result", rec.ID))
		return
	}
	stem := strings.TrimSuffix(filepath.Base(rec.OriginalName), filepath.Ext(rec.OriginalName))
	if stem == "" {
		stem = rec.ID
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stem+".md"))
	c.Data(200, "text/markdown; charset=utf-8", []byte(*rec.MarkdownContent))
}

func decodeFileData(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	// Tolerate data URLs from browser FileReader output.
	if i := strings.Index(raw, ";base64,"); i >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[i+len(";base64,"):]
	}
	if raw == "" {
		return nil, fmt.Errorf("empty")
	}
	return base64.StdEncoding.DecodeString(raw)
}

func queryInt(c *gin.Context, name string, defaultVal int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(raw)
}
