package rag

import (
	"strings"
	"testing"

	"groundedqa/internal/llm"
	"groundedqa/internal/storage"
	"groundedqa/internal/vectorstore"
)

func result(source, text string) vectorstore.Result {
	return vectorstore.Result{Chunk: storage.Chunk{Source: source, Text: text}}
}

func TestAssemble(t *testing.T) {
	results := []vectorstore.Result{
		result("refunds.txt", "Refunds take 5 days."),
		result("shipping.txt", "We ship worldwide."),
		result("refunds.txt", "Contact support if late."),
	}

	prompt := Assemble("  How long do refunds take?  ", results)

	if prompt.Instructions != GroundingInstructions {
		t.Error("Instructions should be GroundingInstructions")
	}
	if prompt.Question != "How long do refunds take?" {
		t.Errorf("Question = %q, want trimmed question", prompt.Question)
	}
	if len(prompt.Passages) != 3 {
		t.Fatalf("Passages = %d, want 3", len(prompt.Passages))
	}
	for i, r := range results {
		if prompt.Passages[i].Source != r.Chunk.Source || prompt.Passages[i].Text != r.Chunk.Text {
			t.Errorf("passage %d = %+v, want %s/%s", i, prompt.Passages[i], r.Chunk.Source, r.Chunk.Text)
		}
	}

	wantContext := "[refunds.txt]\nRefunds take 5 days.\n\n[shipping.txt]\nWe ship worldwide.\n\n[refunds.txt]\nContact support if late."
	if got := prompt.Context(); got != wantContext {
		t.Errorf("Context() = %q, want %q", got, wantContext)
	}

	sources := prompt.Sources()
	if len(sources) != 2 || sources[0] != "refunds.txt" || sources[1] != "shipping.txt" {
		t.Errorf("Sources() = %v, want [refunds.txt shipping.txt]", sources)
	}
}

func TestPrompt_Messages(t *testing.T) {
	prompt := Assemble("Do you ship to Canada?", []vectorstore.Result{result("shipping.txt", "We ship to 40 countries.")})

	messages := prompt.Messages()
	if len(messages) != 2 {
		t.Fatalf("Messages() = %d messages, want 2", len(messages))
	}
	if messages[0].Role != llm.RoleSystem || messages[0].Content != GroundingInstructions {
		t.Errorf("system message = %+v", messages[0])
	}
	wantUser := "Context:\n[shipping.txt]\nWe ship to 40 countries.\n\nQuestion: Do you ship to Canada?"
	if messages[1].Role != llm.RoleUser || messages[1].Content != wantUser {
		t.Errorf("user message = %q, want %q", messages[1].Content, wantUser)
	}
}

func TestPrompt_NoResults(t *testing.T) {
	prompt := Assemble("anything", nil)
	if prompt.Context() != "" {
		t.Errorf("Context() = %q, want empty", prompt.Context())
	}
	if len(prompt.Sources()) != 0 {
		t.Errorf("Sources() = %v, want empty", prompt.Sources())
	}
	if got := prompt.Messages()[1].Content; got != "Context:\n\n\nQuestion: anything" {
		t.Errorf("user message = %q", got)
	}
}

func TestGroundingInstructions(t *testing.T) {
	if !strings.Contains(GroundingInstructions, "\n"+FallbackAnswer+"\n") {
		t.Error("instructions must contain the fallback text verbatim on its own line")
	}
	for _, class := range []string{"Greeting", "Near match", "Answerable", "Unanswerable"} {
		if !strings.Contains(GroundingInstructions, class) {
			t.Errorf("instructions missing case %q", class)
		}
	}
	if GroundingPolicyVersion == "" {
		t.Error("GroundingPolicyVersion must be set")
	}
}
