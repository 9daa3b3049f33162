// Package linker associates extracted figures with nearby question text in
// converted markdown. Both policies are deterministic over their inputs;
// confidences are fixed heuristic constants, not calibrated probabilities.
package linker

import (
	"sort"
	"strconv"

	"github.com/inkmark/inkmark-backend/internal/types"
)

// Figure is the linker's view of one extracted content figure.
type Figure struct {
	ID         string
	PageNumber int
}

// Policy maps (markdown, figures) to scored figure-question links. The two
// implementations use incompatible heuristics and are never blended.
type Policy interface {
	Name() string
	Link(markdown string, figures []Figure) []types.FigureQuestionLink
}

const (
	PolicyNamePageProximity = "page_proximity"
	PolicyNameNearestMarker = "nearest_marker"
)

// ForName returns the policy registered under name, defaulting to page
// proximity.
func ForName(name string) Policy {
	switch name {
	case PolicyNameNearestMarker:
		return NewNearestMarkerPolicy()
	default:
		return NewPageProximityPolicy()
	}
}

// dedupeKeepHighest retains one link per (figureId, questionNumber) pair,
// keeping the highest confidence. Output ordering is stable: question number
// numerically, then figure id.
func dedupeKeepHighest(links []types.FigureQuestionLink) []types.FigureQuestionLink {
	type key struct {
		figure   string
		question string
	}
	best := map[key]types.FigureQuestionLink{}
	for _, l := range links {
		k := key{figure: l.FigureID, question: l.QuestionNumber}
		if cur, ok := best[k]; !ok || l.Confidence > cur.Confidence {
			best[k] = l
		}
	}
	out := make([]types.FigureQuestionLink, 0, len(best))
	for _, l := range best {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		qi, _ := strconv.Atoi(out[i].QuestionNumber)
		qj, _ := strconv.Atoi(out[j].QuestionNumber)
		if qi != qj {
			return qi < qj
		}
		return out[i].FigureID < out[j].FigureID
	})
	return out
}
