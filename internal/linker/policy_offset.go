package linker

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/inkmark/inkmark-backend/internal/types"
)

// NearestMarkerPolicy links each figure to the question marker nearest
// before the figure's image embed in the markdown, measured in characters.
// A figure with no embed, or whose nearest marker is further than the
// distance threshold, produces no link. At most one link per figure.
type NearestMarkerPolicy struct{}

func NewNearestMarkerPolicy() *NearestMarkerPolicy { return &NearestMarkerPolicy{} }

func (p *NearestMarkerPolicy) Name() string { return PolicyNameNearestMarker }

const nearestMarkerMaxDistance = 5000

var imageEmbedRe = regexp.MustCompile(`!\[[^\]]*\]\(([^)]*)\)`)

type questionMarker struct {
	number string
	offset int
}

func (p *NearestMarkerPolicy) Link(markdown string, figures []Figure) []types.FigureQuestionLink {
	markers := scanQuestionMarkers(markdown)
	if len(markers) == 0 {
		return nil
	}
	embeds := imageEmbedRe.FindAllStringSubmatchIndex(markdown, -1)

	var links []types.FigureQuestionLink
	for _, fig := range figures {
		embedOffset, ok := findEmbedOffset(markdown, embeds, fig.ID)
		if !ok {
			continue
		}
		nearest, ok := nearestPreceding(markers, embedOffset)
		if !ok {
			continue
		}
		// Distance is counted in characters, not bytes; OCR markdown is
		// not always ASCII.
		dist := utf8.RuneCountInString(markdown[nearest.offset:embedOffset])
		if dist > nearestMarkerMaxDistance {
			continue
		}
		confidence := math.Max(0.5, 1-float64(dist)/float64(nearestMarkerMaxDistance))
		confidence = math.Round(confidence*100) / 100
		links = append(links, types.FigureQuestionLink{
			FigureID:       fig.ID,
			QuestionNumber: nearest.number,
			PageNumber:     fig.PageNumber,
			Confidence:     confidence,
		})
	}
	return dedupeKeepHighest(links)
}

func scanQuestionMarkers(markdown string) []questionMarker {
	matches := questionMarkerRe.FindAllStringSubmatchIndex(markdown, -1)
	markers := make([]questionMarker, 0, len(matches))
	for _, m := range matches {
		markers = append(markers, questionMarker{
			number: markdown[m[2]:m[3]],
			offset: m[0],
		})
	}
	return markers
}

// findEmbedOffset locates the first image embed whose link target contains
// the figure's filename.
func findEmbedOffset(markdown string, embeds [][]int, figureID string) (int, bool) {
	for _, m := range embeds {
		target := markdown[m[2]:m[3]]
		if strings.Contains(target, figureID) {
			return m[0], true
		}
	}
	return 0, false
}

// nearestPreceding picks the marker closest before the embed offset. Byte
// order suffices here; the character distance is measured afterwards over
// the same span.
func nearestPreceding(markers []questionMarker, embedOffset int) (questionMarker, bool) {
	var best questionMarker
	bestDist := -1
	for _, mk := range markers {
		if mk.offset >= embedOffset {
			continue
		}
		dist := embedOffset - mk.offset
		if bestDist < 0 || dist < bestDist {
			best = mk
			bestDist = dist
		}
	}
	if bestDist < 0 {
		return questionMarker{}, false
	}
	return best, true
}
