package rag

// Passage is one source-labeled context entry handed to the generator.
type Passage struct {
	// Source is the chunk's source identifier (e.g., "billing/refunds.txt").
	Source string `json:"source"`
	// Text is the chunk text.
	Text string `json:"text"`
}

// Prompt is a generation request with its three segments kept apart:
// fixed instructions, retrieved context, and the user question.
type Prompt struct {
	// Instructions is the grounding policy (GroundingInstructions).
	Instructions string `json:"instructions"`
	// Passages are the retrieved chunks in retrieval order.
	Passages []Passage `json:"passages"`
	// Question is the user's question, trimmed.
	Question string `json:"question"`
}
