// Package evaluation replays a question dataset through the chat pipeline and
// scores whether each answer was grounded in the store.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lever-lab/backend/internal/chat"
	"github.com/lever-lab/backend/pkg/logger"
)

type Asker interface {
	Ask(ctx context.Context, h *chat.History, utterance string) (*chat.Answer, error)
}

type Classification string

const (
	Answered Classification = "answered"
	Partial  Classification = "partial"
	Missed   Classification = "missed"
)

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

// DatasetItem is one question with what a good answer must show.
type DatasetItem struct {
	Question    string   `json:"question"`
	Category    string   `json:"category"`
	ExpectQuery bool     `json:"expect_query"`
	MustContain []string `json:"must_contain"`
}

type ItemResult struct {
	Question       string         `json:"question"`
	Category       string         `json:"category"`
	Path           chat.Path      `json:"path"`
	QueryExecuted  bool           `json:"query_executed"`
	Matched        int            `json:"matched"`
	Expected       int            `json:"expected"`
	Classification Classification `json:"classification"`
	Duration       time.Duration  `json:"duration"`
}

type Report struct {
	Total         int               `json:"total"`
	AnsweredCount int               `json:"answered"`
	PartialCount  int               `json:"partial"`
	MissedCount   int               `json:"missed"`
	AnsweredPct   float64           `json:"answered_pct"`
	PartialPct    float64           `json:"partial_pct"`
	MissedPct     float64           `json:"missed_pct"`
	Paths         map[chat.Path]int `json:"paths"`
	AvgDuration   time.Duration     `json:"avg_duration"`
	Items         []ItemResult      `json:"items"`
}

type Evaluator struct {
	asker Asker
}

func NewEvaluator(asker Asker) *Evaluator {
	return &Evaluator{asker: asker}
}

// Evaluate asks one item on a fresh history so items never share context.
func (e *Evaluator) Evaluate(ctx context.Context, item DatasetItem) (*ItemResult, error) {
	answer, err := e.asker.Ask(ctx, chat.NewHistory(chat.DefaultHistoryLimit), item.Question)
	if err != nil {
		return nil, fmt.Errorf("failed to ask %q: %w", item.Question, err)
	}

	res := &ItemResult{
		Question:      item.Question,
		Category:      item.Category,
		Path:          answer.Path,
		QueryExecuted: answer.SQLExecuted(),
		Expected:      len(item.MustContain),
		Duration:      answer.Duration,
	}

	text := strings.ToLower(answer.Text)
	for _, want := range item.MustContain {
		if strings.Contains(text, strings.ToLower(want)) {
			res.Matched++
		}
	}

	res.Classification = classify(item, res)
	return res, nil
}

func classify(item DatasetItem, r *ItemResult) Classification {
	queryOK := !item.ExpectQuery || r.QueryExecuted
	switch {
	case queryOK && r.Matched == r.Expected:
		return Answered
	case r.QueryExecuted || r.Matched > 0:
		return Partial
	default:
		return Missed
	}
}

func (e *Evaluator) Run(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{Paths: map[chat.Path]int{}}
	var total time.Duration

	for i, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := e.Evaluate(ctx, item)
		if err != nil {
			logger.Error("Failed to evaluate item", zap.Int("index", i), zap.Error(err))
			continue
		}

		report.Items = append(report.Items, *res)
		report.Paths[res.Path]++
		total += res.Duration

		switch res.Classification {
		case Answered:
			report.AnsweredCount++
		case Partial:
			report.PartialCount++
		case Missed:
			report.MissedCount++
		}
	}

	report.Total = len(report.Items)
	if report.Total > 0 {
		n := float64(report.Total)
		report.AnsweredPct = float64(report.AnsweredCount) / n * 100
		report.PartialPct = float64(report.PartialCount) / n * 100
		report.MissedPct = float64(report.MissedCount) / n * 100
		report.AvgDuration = total / time.Duration(report.Total)
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.Total),
		zap.Int("answered", report.AnsweredCount),
		zap.Int("partial", report.PartialCount),
		zap.Int("missed", report.MissedCount),
	)

	return report, nil
}

func LoadDataset(data []byte) (*Dataset, error) {
	var dataset Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	return &dataset, nil
}

func (r *Report) String() string {
	paths := make([]string, 0, len(r.Paths))
	for p, n := range r.Paths {
		paths = append(paths, fmt.Sprintf("- %s: %d", p, n))
	}
	sort.Strings(paths)

	return fmt.Sprintf(`Evaluation Report
=================

Total questions: %d

Classifications:
- Answered: %d (%.1f%%)
- Partial: %d (%.1f%%)
- Missed: %d (%.1f%%)

Answer paths:
%s

Average turn duration: %s
`,
		r.Total,
		r.AnsweredCount, r.AnsweredPct,
		r.PartialCount, r.PartialPct,
		r.MissedCount, r.MissedPct,
		strings.Join(paths, "\n"),
		r.AvgDuration.Round(time.Millisecond),
	)
}
