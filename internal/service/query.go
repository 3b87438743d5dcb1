package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_query_service.go -package=mocks -mock_names=QueryService=MockQueryService groundedqa/internal/service QueryService

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"groundedqa/internal/apperr"
	"groundedqa/internal/contextutil"
	"groundedqa/internal/metrics"
	"groundedqa/internal/rag"
	"groundedqa/internal/vectorstore"
)

// QueryRequest represents a question in the domain layer.
type QueryRequest struct {
	Question string `validate:"required"`
}

// Answer is the reply to a question. Sources lists the distinct sources of
// every retrieved chunk in retrieval order, whether or not the answer used them.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// QueryService answers questions against the loaded index.
type QueryService interface {
	// Answer runs retrieval and generation for one question.
	Answer(ctx context.Context, req QueryRequest) (Answer, error)
}

// Options tunes the query path.
type Options struct {
	K int
	// MinScore is the lowest top similarity that is still sent to the
	// generator. Zero disables the gate.
	MinScore float64
}

type queryService struct {
	resources *Resources
	opts      Options
	metrics   *metrics.Metrics
	validate  *validator.Validate
}

// NewQueryService creates a QueryService. A nil m records into a private registry.
func NewQueryService(resources *Resources, opts Options, m *metrics.Metrics) QueryService {
	if opts.K <= 0 {
		opts.K = rag.DefaultK
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &queryService{
		resources: resources,
		opts:      opts,
		metrics:   m,
		validate:  validator.New(),
	}
}

// Answer answers one question. Any stage failure aborts the request with the
// originating error kind; the fallback text is never used to mask an error.
func (s *queryService) Answer(ctx context.Context, req QueryRequest) (Answer, error) {
	logger := contextutil.LoggerFromContext(ctx)

	req.Question = strings.TrimSpace(req.Question)
	if err := s.validate.Struct(req); err != nil {
		logger.WarnContext(ctx, "invalid question", "error", err)
		return Answer{}, &apperr.ValidationError{Field: "question", Message: "must not be empty"}
	}

	answer, outcome, err := s.answer(ctx, req.Question)
	if err != nil {
		s.metrics.Questions.WithLabelValues(metrics.OutcomeError).Inc()
		s.metrics.Errors.WithLabelValues(kindLabel(err)).Inc()
		logger.ErrorContext(ctx, "failed to answer question", "error", err)
		return Answer{}, err
	}

	s.metrics.Questions.WithLabelValues(outcome).Inc()
	logger.InfoContext(ctx, "question answered",
		"outcome", outcome,
		"question_length", len(req.Question),
		"sources", len(answer.Sources),
	)
	return answer, nil
}

func (s *queryService) answer(ctx context.Context, question string) (Answer, string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	shared, err := s.resources.Get(ctx)
	if err != nil {
		return Answer{}, "", apperr.WrapError(err, "failed to load query resources")
	}

	start := time.Now()
	results, err := shared.Retriever.Retrieve(ctx, question, s.opts.K)
	if err != nil {
		return Answer{}, "", apperr.WrapError(err, "failed to retrieve context")
	}
	s.metrics.StageDuration.WithLabelValues(metrics.StageRetrieve).Observe(time.Since(start).Seconds())

	prompt := rag.Assemble(question, results)
	sources := prompt.Sources()
	greeting := rag.IsGreeting(question)

	if len(results) > 0 {
		s.metrics.TopScore.Observe(float64(results[0].Score))
	}
	if s.opts.MinScore != 0 && !greeting && belowGate(results, s.opts.MinScore) {
		logger.DebugContext(ctx, "top score below gate, skipping generation", "min_score", s.opts.MinScore)
		return Answer{Answer: rag.FallbackAnswer, Sources: sources}, metrics.OutcomeFallback, nil
	}

	start = time.Now()
	text, err := shared.Generator.Generate(ctx, prompt)
	if err != nil {
		return Answer{}, "", apperr.WrapError(err, "failed to generate answer")
	}
	s.metrics.StageDuration.WithLabelValues(metrics.StageGenerate).Observe(time.Since(start).Seconds())

	outcome := metrics.OutcomeAnswered
	switch {
	case strings.TrimSpace(text) == rag.FallbackAnswer:
		outcome = metrics.OutcomeFallback
	case greeting:
		outcome = metrics.OutcomeGreeting
	}
	return Answer{Answer: text, Sources: sources}, outcome, nil
}

func belowGate(results []vectorstore.Result, minScore float64) bool {
	return len(results) == 0 || float64(results[0].Score) < minScore
}

// kindLabel names the error kind for the errors_total counter.
func kindLabel(err error) string {
	kind := apperr.Kind(err)
	if kind == nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "canceled"
		}
		return "internal"
	}
	return kind.Error()
}
