package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/inkmark/inkmark-backend/internal/apierr"
	"github.com/inkmark/inkmark-backend/internal/linker"
	"github.com/inkmark/inkmark-backend/internal/logger"
	"github.com/inkmark/inkmark-backend/internal/platform/gcs"
	"github.com/inkmark/inkmark-backend/internal/store"
	"github.com/inkmark/inkmark-backend/internal/types"
	"github.com/inkmark/inkmark-backend/internal/worker"
)

const maxConcurrentUploads = 4

type HistoryPage struct {
	Conversions []*types.Conversion `json:"conversions"`
	Total       int64               `json:"total"`
	HasMore     bool                `json:"hasMore"`
}

// ConversionService drives a conversion end to end and owns its state
// machine: pending -> processing -> completed | failed. Terminal records
// never transition again except via Delete.
type ConversionService interface {
	Submit(ctx context.Context, userID *string, filename string, data []byte) (*types.Conversion, error)
	Get(ctx context.Context, id string) (*types.Conversion, error)
	ListHistory(ctx context.Context, limit, offset int) (*HistoryPage, error)
	Delete(ctx context.Context, callerID *string, id string) error
	ReanalyzeLinks(ctx context.Context, id string) ([]types.FigureQuestionLink, error)
}

type conversionService struct {
	log     *logger.Logger
	store   store.ConversionStore
	bucket  gcs.BucketService
	invoker worker.Invoker
	policy  linker.Policy
	method  string
}

func NewConversionService(
	log *logger.Logger,
	convStore store.ConversionStore,
	bucket gcs.BucketService,
	invoker worker.Invoker,
	policy linker.Policy,
	method string,
) ConversionService {
	serviceLog := log.With("service", "ConversionService", "linker_policy", policy.Name())
	if method == "" {
		method = "tesseract"
	}
	return &conversionService{
		log:     serviceLog,
		store:   convStore,
		bucket:  bucket,
		invoker: invoker,
		policy:  policy,
		method:  method,
	}
}

func (s *conversionService) Submit(ctx context.Context, userID *string, filename string, data []byte) (*types.Conversion, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, apierr.InvalidRequest("filename is required")
	}
	if len(data) == 0 {
		return nil, apierr.InvalidRequest("file data is empty")
	}

	now := time.Now().UTC()
	rec := &types.Conversion{
		ID:           uuid.NewString(),
		OriginalName: filename,
		UserID:       userID,
		SizeBytes:    int64(len(data)),
		Status:       types.ConversionStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, apierr.StorageFailure(fmt.Errorf("persist conversion record: %w", err))
	}
	s.log.Info("Conversion submitted",
		"conversion_id", rec.ID, "filename", filename, "size_bytes", rec.SizeBytes)

	inputKey := "conversions/" + rec.ID + "/" + safeKeyName(filename)
	if err := s.bucket.UploadFile(ctx, inputKey, bytes.NewReader(data)); err != nil {
		s.markFailed(ctx, rec, fmt.Sprintf("failed to store input document: %v", err))
		return nil, apierr.StorageFailure(fmt.Errorf("store input document: %w", err))
	}

	rec.Status = types.ConversionStatusProcessing
	rec.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, rec); err != nil {
		s.markFailed(ctx, rec, fmt.Sprintf("failed to update conversion record: %v", err))
		return nil, apierr.StorageFailure(fmt.Errorf("update conversion record: %w", err))
	}

	result, err := s.invoker.Invoke(ctx, worker.Request{
		ConversionID: rec.ID,
		Filename:     filename,
		Data:         data,
		Method:       s.method,
	})
	if err != nil {
		s.markFailed(ctx, rec, err.Error())
		return nil, apierr.WorkerFailure(fmt.Errorf("conversion worker: %w", err))
	}

	images, err := s.storeArtifacts(ctx, rec.ID, filename, result)
	if err != nil {
		s.markFailed(ctx, rec, fmt.Sprintf("failed to store conversion outputs: %v", err))
		return nil, apierr.StorageFailure(fmt.Errorf("store conversion outputs: %w", err))
	}

	links := s.policy.Link(result.Markdown, linkerFigures(images))
	applyLinkedQuestions(images, links)

	completedAt := time.Now().UTC()
	rec.Status = types.ConversionStatusCompleted
	rec.MarkdownContent = &result.Markdown
	rec.TotalPages = &result.TotalPages
	rec.FiguresExtracted = &result.FiguresExtracted
	rec.ConversionMethod = &result.Method
	rec.Images = datatypes.NewJSONType(images)
	rec.FigureQuestionLinks = datatypes.NewJSONType(links)
	rec.UpdatedAt = completedAt
	rec.CompletedAt = &completedAt
	if err := s.store.Update(ctx, rec); err != nil {
		resetCompletionFields(rec)
		s.markFailed(ctx, rec, fmt.Sprintf("failed to persist conversion result: %v", err))
		return nil, apierr.StorageFailure(fmt.Errorf("persist conversion result: %w", err))
	}

	s.log.Info("Conversion completed",
		"conversion_id", rec.ID,
		"total_pages", result.TotalPages,
		"figures_extracted", result.FiguresExtracted,
		"links", len(links),
		"method", result.Method,
	)
	return rec, nil
}

// storeArtifacts uploads the markdown and every extracted image, returning
// descriptors for content figures only. Page renders are stored but not
// recorded.
func (s *conversionService) storeArtifacts(ctx context.Context, conversionID, filename string, result *worker.Result) ([]types.ImageDescriptor, error) {
	stem := strings.TrimSuffix(safeKeyName(filename), filepath.Ext(filename))
	markdownKey := "conversions/" + conversionID + "/" + stem + ".md"

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUploads)

	g.Go(func() error {
		return s.bucket.UploadFile(gctx, markdownKey, strings.NewReader(result.Markdown))
	})
	for _, fig := range result.Figures {
		key := "conversions/" + conversionID + "/images/" + fig.Filename
		data := fig.Data
		g.Go(func() error {
			return s.bucket.UploadFile(gctx, key, bytes.NewReader(data))
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var images []types.ImageDescriptor
	for _, fig := range result.Figures {
		if fig.Type != worker.FigureTypeEmbedded {
			continue
		}
		key := "conversions/" + conversionID + "/images/" + fig.Filename
		images = append(images, types.ImageDescriptor{
			Filename:   fig.Filename,
			URL:        s.bucket.GetPublicURL(key),
			PageNumber: fig.Page,
		})
	}
	return images, nil
}

// resetCompletionFields clears the result fields that only a completed
// record may carry, so a record that fails after conversion does not keep a
// partial result.
func resetCompletionFields(rec *types.Conversion) {
	rec.Status = types.ConversionStatusProcessing
	rec.MarkdownContent = nil
	rec.TotalPages = nil
	rec.FiguresExtracted = nil
	rec.ConversionMethod = nil
	rec.Images = datatypes.JSONType[[]types.ImageDescriptor]{}
	rec.FigureQuestionLinks = datatypes.JSONType[[]types.FigureQuestionLink]{}
	rec.CompletedAt = nil
}

// markFailed forces the record into a terminal failed state. Failures here
// are logged, not propagated; the original error is what the caller sees.
// Terminal records are left alone.
func (s *conversionService) markFailed(ctx context.Context, rec *types.Conversion, message string) {
	if rec.IsTerminal() {
		return
	}
	rec.Status = types.ConversionStatusFailed
	rec.ErrorMessage = &message
	rec.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, rec); err != nil {
		s.log.Error("Failed to persist failed conversion state",
			"conversion_id", rec.ID, "error", err)
	}
	s.log.Warn("Conversion failed", "conversion_id", rec.ID, "reason", message)
}

func (s *conversionService) Get(ctx context.Context, id string) (*types.Conversion, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.NotFound("conversion %s not found", id)
		}
		return nil, apierr.StorageFailure(err)
	}
	return rec, nil
}

func (s *conversionService) ListHistory(ctx context.Context, limit, offset int) (*HistoryPage, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	conversions, total, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, apierr.StorageFailure(err)
	}
	return &HistoryPage{
		Conversions: conversions,
		Total:       total,
		HasMore:     int64(offset+len(conversions)) < total,
	}, nil
}

func (s *conversionService) Delete(ctx context.Context, callerID *string, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.UserID != nil && callerID != nil && *callerID != *rec.UserID {
		return apierr.Forbidden("conversion %s belongs to another user", id)
	}
	if err := s.store.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierr.NotFound("conversion %s not found", id)
		}
		return apierr.StorageFailure(err)
	}
	// Blob cleanup is best effort; the record deletion is what matters.
	if err := s.bucket.DeletePrefix(ctx, "conversions/"+id+"/"); err != nil {
		s.log.Warn("Failed to delete stored blobs for conversion",
			"conversion_id", id, "error", err)
	}
	s.log.Info("Conversion deleted", "conversion_id", id)
	return nil
}

func (s *conversionService) ReanalyzeLinks(ctx context.Context, id string) ([]types.FigureQuestionLink, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	images := rec.Images.Data()
	if rec.MarkdownContent == nil || strings.TrimSpace(*rec.MarkdownContent) == "" || len(images) == 0 {
		return nil, apierr.IncompleteData("conversion %s has no stored markdown or images to analyze", id)
	}

	links := s.policy.Link(*rec.MarkdownContent, linkerFigures(images))
	applyLinkedQuestions(images, links)

	rec.Images = datatypes.NewJSONType(images)
	rec.FigureQuestionLinks = datatypes.NewJSONType(links)
	rec.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, apierr.StorageFailure(fmt.Errorf("persist reanalyzed links: %w", err))
	}
	s.log.Info("Conversion links reanalyzed", "conversion_id", id, "links", len(links))
	return links, nil
}

func linkerFigures(images []types.ImageDescriptor) []linker.Figure {
	figures := make([]linker.Figure, 0, len(images))
	for _, img := range images {
		figures = append(figures, linker.Figure{ID: img.Filename, PageNumber: img.PageNumber})
	}
	return figures
}

// applyLinkedQuestions labels each image with its highest-confidence linked
// question, if any.
func applyLinkedQuestions(images []types.ImageDescriptor, links []types.FigureQuestionLink) {
	best := map[string]types.FigureQuestionLink{}
	for _, l := range links {
		if cur, ok := best[l.FigureID]; !ok || l.Confidence > cur.Confidence {
			best[l.FigureID] = l
		}
	}
	for i := range images {
		if l, ok := best[images[i].Filename]; ok {
			images[i].LinkedQuestion = l.QuestionNumber
		} else {
			images[i].LinkedQuestion = ""
		}
	}
}

func safeKeyName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." {
		base = "document.pdf"
	}
	return strings.ReplaceAll(base, " ", "_")
}
