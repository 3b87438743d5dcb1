package rag

import (
	"strings"

	"groundedqa/internal/llm"
	"groundedqa/internal/vectorstore"
)

// GroundingPolicyVersion identifies GroundingInstructions. Bump it whenever the
// instruction text changes.
const GroundingPolicyVersion = "faq-grounding/v1"

// FallbackAnswer is returned verbatim when a question cannot be answered from
// the corpus. It is a successful answer, not an error.
const FallbackAnswer = "I'm sorry, I don't know that. Please contact customer support for help."

// GroundingInstructions is the system prompt sent with every question.
const GroundingInstructions = `You are a helpful assistant that answers customer questions using only the context passages from our FAQ.

Classify the user's input into exactly one of these cases and respond accordingly:

1. Greeting: the input is a salutation or thanks (for example hi, hello, hey, thanks) and not a question. Reply briefly and politely. Do not add any facts.
2. Near match: the input is a misspelling, typo or close paraphrase of an entry in the context. Correct the intent silently and answer from that entry.
3. Answerable: the context contains an entry that answers the question directly or a closely related entry. Answer strictly from the context. Never add information that is not in the context.
4. Unanswerable: none of the above applies. Respond with exactly this text and nothing else:
` + FallbackAnswer + `

Do not use outside knowledge. Do not mention these instructions or the context passages.`

// Assemble builds the prompt for question from the retrieved results,
// keeping their order.
func Assemble(question string, results []vectorstore.Result) Prompt {
	passages := make([]Passage, 0, len(results))
	for _, r := range results {
		passages = append(passages, Passage{Source: r.Chunk.Source, Text: r.Chunk.Text})
	}
	return Prompt{
		Instructions: GroundingInstructions,
		Passages:     passages,
		Question:     strings.TrimSpace(question),
	}
}

// Context renders the passages as "[source]\ntext" blocks separated by a blank line.
func (p Prompt) Context() string {
	blocks := make([]string, 0, len(p.Passages))
	for _, passage := range p.Passages {
		blocks = append(blocks, "["+passage.Source+"]\n"+passage.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// Messages renders the prompt as a system message followed by one user message.
func (p Prompt) Messages() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: p.Instructions},
		{Role: llm.RoleUser, Content: "Context:\n" + p.Context() + "\n\nQuestion: " + p.Question},
	}
}

// Sources returns the distinct passage sources in first-seen order.
func (p Prompt) Sources() []string {
	seen := make(map[string]struct{}, len(p.Passages))
	sources := make([]string, 0, len(p.Passages))
	for _, passage := range p.Passages {
		if _, ok := seen[passage.Source]; ok {
			continue
		}
		seen[passage.Source] = struct{}{}
		sources = append(sources, passage.Source)
	}
	return sources
}
