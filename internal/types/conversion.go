package types

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ConversionStatusPending    = "pending"
	ConversionStatusProcessing = "processing"
	ConversionStatusCompleted  = "completed"
	ConversionStatusFailed     = "failed"
)

// Conversion is one submitted document and its persisted result. The ID is an
// opaque URL-safe string assigned at submission, never reused.
type Conversion struct {
	ID                  string                                   `gorm:"primaryKey" json:"conversionId"`
	OriginalName        string                                   `gorm:"column:original_name;not null" json:"originalName"`
	UserID              *string                                  `gorm:"column:user_id;index" json:"userId,omitempty"`
	SizeBytes           int64                                    `gorm:"column:size_bytes" json:"sizeBytes"`
	Status              string                                   `gorm:"column:status;not null;default:'pending';index" json:"status"`
	TotalPages          *int                                     `gorm:"column:total_pages" json:"totalPages,omitempty"`
	FiguresExtracted    *int                                     `gorm:"column:figures_extracted" json:"figuresExtracted,omitempty"`
	ConversionMethod    *string                                  `gorm:"column:conversion_method" json:"conversionMethod,omitempty"`
	MarkdownContent     *string                                  `gorm:"column:markdown_content;type:text" json:"markdownContent,omitempty"`
	Images              datatypes.JSONType[[]ImageDescriptor]    `gorm:"column:images;type:jsonb" json:"images"`
	FigureQuestionLinks datatypes.JSONType[[]FigureQuestionLink] `gorm:"column:figure_question_links;type:jsonb" json:"figureQuestionLinks"`
	ErrorMessage        *string                                  `gorm:"column:error_message" json:"errorMessage,omitempty"`
	CreatedAt           time.Time                                `gorm:"not null;index" json:"createdAt"`
	UpdatedAt           time.Time                                `gorm:"not null" json:"updatedAt"`
	CompletedAt         *time.Time                               `gorm:"column:completed_at" json:"completedAt,omitempty"`
}

func (Conversion) TableName() string { return "conversion" }

// IsTerminal reports whether the record reached a final state.
func (c *Conversion) IsTerminal() bool {
	return c.Status == ConversionStatusCompleted || c.Status == ConversionStatusFailed
}

// ImageDescriptor points at one stored extracted figure. Ordering within a
// conversion follows extraction order.
type ImageDescriptor struct {
	Filename       string `json:"filename"`
	URL            string `json:"url"`
	PageNumber     int    `json:"pageNumber"`
	LinkedQuestion string `json:"linkedQuestion,omitempty"`
}

// FigureQuestionLink is a scored association between a stored figure and a
// question marker in the markdown. Confidence is a fixed heuristic constant,
// not a calibrated probability.
type FigureQuestionLink struct {
	FigureID       string  `json:"figureId"`
	QuestionNumber string  `json:"questionNumber"`
	PageNumber     int     `json:"pageNumber"`
	Confidence     float64 `json:"confidence"`
}
