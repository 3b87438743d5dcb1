package rag

import (
	"context"
	"strings"

	"groundedqa/internal/apperr"
	"groundedqa/internal/contextutil"
	"groundedqa/internal/lexical"
)

// DefaultMatchThreshold is the share of question terms a paragraph must cover
// for LocalGenerator to answer from it.
const DefaultMatchThreshold = 0.6

const (
	greetingReply = "Hello! How can I help you today?"
	thanksReply   = "You're welcome! Let me know if you have any other questions."
)

var (
	greetingWords = map[string]struct{}{
		"hi": {}, "hello": {}, "hey": {}, "hiya": {}, "howdy": {}, "greetings": {}, "yo": {},
		"morning": {}, "afternoon": {}, "evening": {},
	}
	thanksWords = map[string]struct{}{
		"thanks": {}, "thank": {}, "thx": {}, "ty": {}, "cheers": {}, "appreciated": {},
	}
	// Words that may accompany a greeting without making it a question.
	greetingFillers = map[string]struct{}{
		"there": {}, "you": {}, "good": {}, "so": {}, "much": {}, "a": {}, "lot": {},
		"all": {}, "everyone": {}, "folks": {}, "team": {}, "again": {}, "very": {}, "oh": {}, "ok": {}, "okay": {},
		"how": {}, "are": {}, "doing": {}, "today": {}, "is": {}, "it": {}, "going": {},
	}
)

// IsGreeting reports whether text is a salutation or thanks rather than a
// question: every word is a greeting, a thanks or a filler, and at least one
// is a greeting or thanks.
func IsGreeting(text string) bool {
	_, ok := classifyGreeting(text)
	return ok
}

func classifyGreeting(text string) (reply string, ok bool) {
	tokens := lexical.Tokenize(text)
	if len(tokens) == 0 {
		return "", false
	}

	var greeting, thanks bool
	for _, token := range tokens {
		if _, isGreeting := greetingWords[token]; isGreeting {
			greeting = true
			continue
		}
		if _, isThanks := thanksWords[token]; isThanks {
			thanks = true
			continue
		}
		if _, isFiller := greetingFillers[token]; isFiller {
			continue
		}
		return "", false
	}

	switch {
	case thanks:
		return thanksReply, true
	case greeting:
		return greetingReply, true
	default:
		return "", false
	}
}

// LocalGenerator applies the grounding policy without a model: greetings get a
// canned reply; otherwise the passage paragraph covering the most question
// terms (typo tolerant) is returned when its coverage reaches Threshold, and
// FallbackAnswer when none does.
type LocalGenerator struct {
	Threshold float64
}

// NewLocalGenerator creates a local generator with DefaultMatchThreshold.
func NewLocalGenerator() *LocalGenerator {
	return &LocalGenerator{Threshold: DefaultMatchThreshold}
}

// Generate implements Generator.
func (g *LocalGenerator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := ctx.Err(); err != nil {
		return "", apperr.Wrap(apperr.ErrGeneration, err, "generation cancelled")
	}

	if reply, ok := classifyGreeting(prompt.Question); ok {
		return reply, nil
	}

	terms := lexical.Terms(prompt.Question)
	if len(terms) == 0 {
		return FallbackAnswer, nil
	}

	var (
		best      float64
		bestIdx   = -1
		bestParas []string
	)
	for _, passage := range prompt.Passages {
		paras := paragraphs(passage.Text)
		for i, para := range paras {
			// Strictly greater keeps the earliest paragraph on ties, so retrieval order wins.
			if score := lexical.Coverage(terms, para); score > best {
				best, bestIdx, bestParas = score, i, paras
			}
		}
	}

	threshold := g.Threshold
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	logger.DebugContext(ctx, "local generator match", "terms", terms, "coverage", best, "threshold", threshold)
	if bestIdx < 0 || best < threshold {
		return FallbackAnswer, nil
	}

	// An FAQ question paragraph is answered by the paragraph that follows it.
	answer := bestParas[bestIdx]
	if strings.HasSuffix(answer, "?") && bestIdx+1 < len(bestParas) {
		answer = bestParas[bestIdx+1]
	}
	return answer, nil
}

// paragraphs splits text on blank lines and drops empty pieces.
func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
