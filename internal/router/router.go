// Package router decides which lobe should handle a brain request.
// Three stages run in order: a deterministic rule match, a weighted
// keyword classifier, and a confidence-gated arbitration step with an
// optional advisory arbiter.
package router

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/axonworks/cortexd/internal/lobe"
)

var frontalKeywords = []string{
	"plan", "decide", "explain", "solve", "brainstorm",
	"improve", "optimize", "strategy", "why", "how",
}

var temporalKeywords = []string{
	"summarize", "analyze", "explain this file", "read this",
	"extract", "convert", "structure", "topic", "concept",
}

var parietalKeywords = []string{
	"remember", "recall", "find", "search", "my notes",
	"what did i write", "memory", "previous", "history",
}

var occipitalKeywords = []string{
	"read image", "screenshot", "photo", "extract text from image",
	"diagram", "sketch", "visual", "handwriting",
}

// Classifier families are narrower than the rule keywords and score by
// hit count.
var classifierFamilies = map[lobe.Kind][]string{
	lobe.Frontal:   {"plan", "solve", "think", "idea", "decision"},
	lobe.Temporal:  {"summarize", "analyze", "explain", "extract"},
	lobe.Parietal:  {"remember", "recall", "search", "find", "memory"},
	lobe.Occipital: {"image", "photo", "diagram", "vision", "screenshot"},
}

const (
	ruleConfidence    = 0.6
	gatingConfidence  = 0.5
	arbitrationGate   = 0.7
	explicitConfident = 1.0
)

// Input carries everything the router inspects.
type Input struct {
	Query         string
	FileMime      string
	Requested     lobe.Kind // empty or lobe.Auto defers to routing
	MemoryEnabled bool
	VisionEnabled bool
}

// Decision is the routing outcome. Reason is always populated.
type Decision struct {
	Lobe       lobe.Kind
	Confidence float64
	Reason     string
}

// Arbiter may second-guess the preliminary choice. It is advisory: an
// error or unusable answer leaves the preliminary decision unchanged.
type Arbiter interface {
	Arbitrate(ctx context.Context, query string, preliminary lobe.Kind) (lobe.Kind, string, error)
}

type Router struct {
	arbiter Arbiter
}

func New(arbiter Arbiter) *Router {
	return &Router{arbiter: arbiter}
}

func matchAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	t := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

func scoreKeywords(query string, keywords []string) int {
	if query == "" {
		return 0
	}
	t := strings.ToLower(query)
	score := 0
	for _, k := range keywords {
		if strings.Contains(t, k) {
			score++
		}
	}
	return score
}

// ruleLobe always yields a lobe. File type wins first, then keyword
// sets in fixed precedence, then the frontal default.
func ruleLobe(query, fileMime string) lobe.Kind {
	if strings.HasPrefix(fileMime, "image/") {
		return lobe.Occipital
	}
	if strings.Contains(fileMime, "pdf") || strings.Contains(fileMime, "document") {
		return lobe.Temporal
	}
	if matchAny(query, occipitalKeywords) {
		return lobe.Occipital
	}
	if matchAny(query, temporalKeywords) {
		return lobe.Temporal
	}
	if matchAny(query, frontalKeywords) {
		return lobe.Frontal
	}
	if matchAny(query, parietalKeywords) {
		return lobe.Parietal
	}
	return lobe.Frontal
}

// gated reports whether the user's capability settings forbid the kind.
func gated(kind lobe.Kind, in Input) bool {
	switch kind {
	case lobe.Parietal:
		return !in.MemoryEnabled
	case lobe.Occipital:
		return !in.VisionEnabled
	}
	return false
}

// ungatedRule is the rule stage result with disabled families removed.
// The rule keyword for a gated family may match the same query that
// tripped the gate, so a plain rule fallback is not safe here.
func ungatedRule(in Input) lobe.Kind {
	rule := ruleLobe(in.Query, in.FileMime)
	if gated(rule, in) {
		return lobe.Frontal
	}
	return rule
}

// classify scores the query against each family and applies capability
// gating against the user's settings.
func classify(in Input) Decision {
	rule := ruleLobe(in.Query, in.FileMime)

	best := lobe.Frontal
	bestScore := 0
	for _, kind := range lobe.Kinds() {
		s := scoreKeywords(in.Query, classifierFamilies[kind])
		if s > bestScore {
			best, bestScore = kind, s
		}
	}

	if bestScore > 0 {
		if best == lobe.Parietal && !in.MemoryEnabled {
			return Decision{Lobe: ungatedRule(in), Confidence: gatingConfidence, Reason: "memory disabled"}
		}
		if best == lobe.Occipital && !in.VisionEnabled {
			return Decision{Lobe: ungatedRule(in), Confidence: gatingConfidence, Reason: "vision disabled"}
		}
		return Decision{
			Lobe:       best,
			Confidence: 0.5 + 0.1*float64(bestScore),
			Reason:     fmt.Sprintf("classifier matched %s with score %d", best, bestScore),
		}
	}
	return Decision{Lobe: rule, Confidence: ruleConfidence, Reason: "rule fallback"}
}

// Route resolves the final lobe. An explicit request short-circuits all
// stages. Otherwise the classifier result is adopted only above the
// arbitration gate, and the arbiter may substitute its own answer.
func (r *Router) Route(ctx context.Context, in Input) Decision {
	if in.Requested != "" && in.Requested != lobe.Auto {
		return Decision{
			Lobe:       in.Requested,
			Confidence: explicitConfident,
			Reason:     "explicitly requested",
		}
	}

	cls := classify(in)
	final := cls
	if cls.Confidence < arbitrationGate {
		rule := ungatedRule(in)
		if rule != cls.Lobe {
			final = Decision{
				Lobe:       rule,
				Confidence: cls.Confidence,
				Reason:     fmt.Sprintf("low confidence %.2f, rule stage chose %s", cls.Confidence, rule),
			}
		}
	}

	if r.arbiter != nil {
		kind, reason, err := r.arbiter.Arbitrate(ctx, in.Query, final.Lobe)
		if err != nil {
			log.Printf("[router] arbiter skipped: %v", err)
		} else if _, ok := lobe.ParseKind(string(kind)); ok && kind != lobe.Auto && !gated(kind, in) {
			final.Lobe = kind
			if reason != "" {
				final.Reason = reason
			}
		}
	}

	if final.Reason == "" {
		final.Reason = "rule fallback"
	}
	return final
}
