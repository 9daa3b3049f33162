package linker

import (
	"testing"
)

func TestPageProximitySamePageMatch(t *testing.T) {
	markdown := "## Page 3\n\n**7.** as shown in the figure, what is X?\n"
	figures := []Figure{
		{ID: "f1", PageNumber: 3},
		{ID: "f2", PageNumber: 5},
	}

	links := NewPageProximityPolicy().Link(markdown, figures)

	if len(links) != 1 {
		t.Fatalf("links: want=1 got=%d (%+v)", len(links), links)
	}
	got := links[0]
	if got.FigureID != "f1" || got.QuestionNumber != "7" {
		t.Fatalf("link identity: want=f1/7 got=%s/%s", got.FigureID, got.QuestionNumber)
	}
	if got.Confidence != 0.95 {
		t.Fatalf("confidence: want=0.95 got=%v", got.Confidence)
	}
	if got.PageNumber != 3 {
		t.Fatalf("page: want=3 got=%d", got.PageNumber)
	}
}

func TestPageProximityAdjacentPageMatch(t *testing.T) {
	markdown := "## Page 3\n\n**2.** refer to the diagram for this question.\n"
	figures := []Figure{{ID: "fig-a", PageNumber: 4}}

	links := NewPageProximityPolicy().Link(markdown, figures)

	if len(links) != 1 {
		t.Fatalf("links: want=1 got=%d", len(links))
	}
	if links[0].Confidence != 0.75 {
		t.Fatalf("confidence: want=0.75 got=%v", links[0].Confidence)
	}
	if links[0].PageNumber != 4 {
		t.Fatalf("page: want figure's page 4, got=%d", links[0].PageNumber)
	}
}

func TestPageProximityDistanceGate(t *testing.T) {
	markdown := "## Page 3\n\n**1.** based on the chart, pick one.\n"
	figures := []Figure{
		{ID: "near", PageNumber: 2},
		{ID: "far", PageNumber: 5},
	}

	links := NewPageProximityPolicy().Link(markdown, figures)

	if len(links) != 1 {
		t.Fatalf("links: want=1 got=%d (%+v)", len(links), links)
	}
	if links[0].FigureID != "near" {
		t.Fatalf("figure: want=near got=%s", links[0].FigureID)
	}
}

func TestPageProximityKeywordGate(t *testing.T) {
	markdown := "## Page 3\n\n**4.** solve for x in 2x + 1 = 5.\n"
	figures := []Figure{{ID: "f1", PageNumber: 3}}

	links := NewPageProximityPolicy().Link(markdown, figures)

	if len(links) != 0 {
		t.Fatalf("non-referencing question must produce no links, got=%+v", links)
	}
}

func TestPageProximityDedupKeepsHighestConfidence(t *testing.T) {
	// Question 7 appears on pages 2 and 3; the figure sits on page 3, so
	// the same (figure, question) pair would score 0.75 and 0.95.
	markdown := "## Page 2\n\n**7.** use the following graph.\n\n" +
		"## Page 3\n\n**7.** use the following graph.\n"
	figures := []Figure{{ID: "f1", PageNumber: 3}}

	links := NewPageProximityPolicy().Link(markdown, figures)

	if len(links) != 1 {
		t.Fatalf("dedup: want=1 got=%d (%+v)", len(links), links)
	}
	if links[0].Confidence != 0.95 {
		t.Fatalf("dedup must keep highest confidence, got=%v", links[0].Confidence)
	}
}

func TestPageProximityMultipleQuestionsOnePage(t *testing.T) {
	markdown := "## Page 1\n\n" +
		"**1.** according to the table, which value is largest?\n\n" +
		"**2.** compute 3 + 4.\n\n" +
		"**3.** the picture shows a cell. label it.\n"
	figures := []Figure{{ID: "f1", PageNumber: 1}}

	links := NewPageProximityPolicy().Link(markdown, figures)

	if len(links) != 2 {
		t.Fatalf("links: want=2 got=%d (%+v)", len(links), links)
	}
	if links[0].QuestionNumber != "1" || links[1].QuestionNumber != "3" {
		t.Fatalf("question numbers: want=[1 3] got=[%s %s]", links[0].QuestionNumber, links[1].QuestionNumber)
	}
}

func TestPageProximityConfidenceBounds(t *testing.T) {
	markdown := "## Page 1\n\n**1.** see the figure below.\n\n## Page 2\n\n**9.** see the image above.\n"
	figures := []Figure{
		{ID: "a", PageNumber: 1},
		{ID: "b", PageNumber: 2},
		{ID: "c", PageNumber: 3},
	}

	links := NewPageProximityPolicy().Link(markdown, figures)

	if len(links) == 0 {
		t.Fatalf("expected links")
	}
	seen := map[string]bool{}
	for _, l := range links {
		if l.Confidence < 0 || l.Confidence > 1 {
			t.Fatalf("confidence out of range: %+v", l)
		}
		key := l.FigureID + "/" + l.QuestionNumber
		if seen[key] {
			t.Fatalf("duplicate (figure, question) pair: %s", key)
		}
		seen[key] = true
	}
}

func TestPageProximityEmptyInputs(t *testing.T) {
	policy := NewPageProximityPolicy()
	if links := policy.Link("", []Figure{{ID: "f", PageNumber: 1}}); len(links) != 0 {
		t.Fatalf("empty markdown: want no links, got=%+v", links)
	}
	if links := policy.Link("## Page 1\n\n**1.** see figure.\n", nil); len(links) != 0 {
		t.Fatalf("no figures: want no links, got=%+v", links)
	}
}
