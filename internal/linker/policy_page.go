package linker

import (
	"regexp"
	"strings"

	"github.com/inkmark/inkmark-backend/internal/types"
)

// PageProximityPolicy (the default) links every figure-referencing question
// on page P to every figure on page P or an adjacent page. Same-page matches
// score 0.95, adjacent-page matches 0.75; duplicates keep the higher score.
type PageProximityPolicy struct{}

func NewPageProximityPolicy() *PageProximityPolicy { return &PageProximityPolicy{} }

func (p *PageProximityPolicy) Name() string { return PolicyNamePageProximity }

const (
	samePageConfidence     = 0.95
	adjacentPageConfidence = 0.75
	maxPageDistance        = 1
)

// figureKeywords gates which questions count as figure-referencing. The
// check runs over the lowercased question text.
var figureKeywords = []string{
	"figure", "graph", "diagram", "shown", "below", "above",
	"image", "chart", "table", "illustration", "picture",
	"as shown", "in the figure", "following figure",
	"refer to", "based on", "according to the", "use the following",
}

var (
	pageMarkerRe     = regexp.MustCompile(`(?m)^## Page (\d+)\s*$`)
	questionMarkerRe = regexp.MustCompile(`\*\*(\d+)\.\*\*`)
)

type pageBlock struct {
	number int
	text   string
}

type questionBlock struct {
	number string
	text   string
}

func (p *PageProximityPolicy) Link(markdown string, figures []Figure) []types.FigureQuestionLink {
	pageByFigure := map[string]int{}
	for _, f := range figures {
		pageByFigure[f.ID] = f.PageNumber
	}

	var links []types.FigureQuestionLink
	for _, page := range splitPages(markdown) {
		for _, q := range splitQuestions(page.text) {
			if !referencesFigure(q.text) {
				continue
			}
			for _, f := range figures {
				dist := page.number - f.PageNumber
				if dist < 0 {
					dist = -dist
				}
				if dist > maxPageDistance {
					continue
				}
				confidence := adjacentPageConfidence
				if dist == 0 {
					confidence = samePageConfidence
				}
				links = append(links, types.FigureQuestionLink{
					FigureID:       f.ID,
					QuestionNumber: q.number,
					PageNumber:     f.PageNumber,
					Confidence:     confidence,
				})
			}
		}
	}
	return dedupeKeepHighest(links)
}

// splitPages segments markdown into blocks delimited by "## Page N" markers.
// Text before the first marker belongs to no page and is ignored.
func splitPages(markdown string) []pageBlock {
	markers := pageMarkerRe.FindAllStringSubmatchIndex(markdown, -1)
	blocks := make([]pageBlock, 0, len(markers))
	for i, m := range markers {
		start := m[1]
		end := len(markdown)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		number := atoiSafe(markdown[m[2]:m[3]])
		blocks = append(blocks, pageBlock{number: number, text: markdown[start:end]})
	}
	return blocks
}

// splitQuestions segments one page block into question blocks; each question
// runs from its "**N.**" marker to the next marker or end of block.
func splitQuestions(block string) []questionBlock {
	markers := questionMarkerRe.FindAllStringSubmatchIndex(block, -1)
	questions := make([]questionBlock, 0, len(markers))
	for i, m := range markers {
		start := m[1]
		end := len(block)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		questions = append(questions, questionBlock{
			number: block[m[2]:m[3]],
			text:   block[start:end],
		})
	}
	return questions
}

func referencesFigure(questionText string) bool {
	lowered := strings.ToLower(questionText)
	for _, kw := range figureKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
