// Package chat turns one user utterance into one answer grounded in the
// experiment store.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lever-lab/backend/internal/cache"
	"github.com/lever-lab/backend/internal/llm"
	"github.com/lever-lab/backend/internal/metrics"
	"github.com/lever-lab/backend/internal/query"
	"github.com/lever-lab/backend/internal/storage/models"
	"github.com/lever-lab/backend/pkg/logger"
)

var ErrEmptyUtterance = errors.New("utterance must not be empty")

type Querier interface {
	Execute(ctx context.Context, statement string) (*query.Result, error)
}

type AvailabilitySource interface {
	Availability(ctx context.Context) (*models.Availability, error)
}

// Path is the route a turn took to its answer.
type Path string

const (
	PathPlain        Path = "plain"
	PathReformulated Path = "reformulated"
	PathFallback     Path = "fallback"
	PathNoData       Path = "no_data"
	PathUnavailable  Path = "unavailable"
)

type Answer struct {
	Text     string
	Path     Path
	SQL      string
	Result   *query.Result
	Cached   bool
	Duration time.Duration
}

// SQLExecuted reports whether the turn produced rows from the store.
func (a *Answer) SQLExecuted() bool {
	return a.Result != nil
}

type Options struct {
	Schema       string
	ContextTurns int
	CacheTTL     time.Duration
	Model        string
}

type Pipeline struct {
	llm   llm.Completer
	exec  Querier
	cache cache.Cache
	avail AvailabilitySource
	opts  Options

	inflight singleflight.Group
}

func NewPipeline(completer llm.Completer, exec Querier, c cache.Cache, avail AvailabilitySource, opts Options) *Pipeline {
	if opts.Schema == "" {
		opts.Schema = DefaultSchema
	}
	if opts.ContextTurns <= 0 {
		opts.ContextTurns = 6
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &Pipeline{llm: completer, exec: exec, cache: c, avail: avail, opts: opts}
}

// Ask answers one utterance and appends both turns to h. The caller
// serialises turns of the same history. Upstream failures are folded into
// the answer text; the only error returned is ErrEmptyUtterance.
func (p *Pipeline) Ask(ctx context.Context, h *History, utterance string) (*Answer, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, ErrEmptyUtterance
	}

	start := time.Now()
	window := h.Window(p.opts.ContextTurns)

	answer := p.answer(ctx, window, utterance)
	answer.Duration = time.Since(start)

	h.Append(llm.RoleUser, utterance)
	h.Append(llm.RoleAssistant, answer.Text)

	metrics.ChatTurnsTotal.WithLabelValues(string(answer.Path)).Inc()
	metrics.ChatTurnDuration.WithLabelValues(string(answer.Path)).Observe(answer.Duration.Seconds())

	logger.Info("Chat turn completed",
		zap.String("path", string(answer.Path)),
		zap.Bool("cached", answer.Cached),
		zap.Duration("duration", answer.Duration),
	)

	return answer, nil
}

func (p *Pipeline) answer(ctx context.Context, window []Turn, utterance string) *Answer {
	draft, err := p.complete(ctx, "draft", llm.CompletionRequest{
		SystemPrompt: systemPrompt(p.opts.Schema),
		History:      toMessages(window),
		UserPrompt:   utterance,
	})
	if err != nil {
		return &Answer{Text: unavailableMessage, Path: PathUnavailable}
	}

	reply := llm.ParseReply(draft)
	if reply.Kind != llm.ReplyQuery {
		return &Answer{Text: draft, Path: PathPlain}
	}

	logger.Info("SQL detected", zap.String("sql", reply.Query))

	res, cached, err := p.run(ctx, reply.Query)
	if err != nil || res.RowCount == 0 {
		return &Answer{
			Text:   p.explainNoData(ctx, utterance, err != nil),
			Path:   PathNoData,
			SQL:    reply.Query,
			Result: res,
			Cached: cached,
		}
	}

	ans := &Answer{SQL: reply.Query, Result: res, Cached: cached}

	text, err := p.complete(ctx, "reformulation", llm.CompletionRequest{
		SystemPrompt: preamble,
		UserPrompt:   reformulationPrompt(utterance, reply.Prose(), res),
		Temperature:  llm.Temperature(0.1),
	})
	if err != nil || strings.TrimSpace(text) == "" {
		logger.Warn("Reformulation failed, substituting results", zap.Error(err))
		ans.Text = substituteResult(reply.Prose(), res)
		ans.Path = PathFallback
		return ans
	}

	ans.Text = strings.TrimSpace(text)
	ans.Path = PathReformulated
	return ans
}

// run returns the cached result of a query or executes it once, sharing the
// execution between concurrent identical requests.
func (p *Pipeline) run(ctx context.Context, statement string) (*query.Result, bool, error) {
	key := cache.Key(statement)

	if p.cache != nil {
		entry, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			logger.Warn("Cache lookup failed", zap.Error(err))
		}
		if ok {
			metrics.CacheHits.WithLabelValues("query").Inc()
			logger.Info("Cache hit", zap.String("query_hash", key))
			return entry.Result, true, nil
		}
		metrics.CacheMisses.WithLabelValues("query").Inc()
		logger.Info("Cache miss", zap.String("query_hash", key))
	}

	// The shared execution outlives any one caller; each caller stops waiting
	// when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := p.inflight.DoChan(key, func() (any, error) {
		return p.exec.Execute(shared, statement)
	})

	var out singleflight.Result
	select {
	case out = <-ch:
	case <-ctx.Done():
		logger.Warn("SQL abandoned by caller", zap.String("sql", statement), zap.Error(ctx.Err()))
		return nil, false, ctx.Err()
	}

	v, err := out.Val, out.Err
	if err != nil {
		metrics.SQLExecutions.WithLabelValues("failed").Inc()
		logger.Warn("SQL failed", zap.String("sql", statement), zap.Error(err))
		return nil, false, err
	}

	res := v.(*query.Result)
	metrics.SQLExecutions.WithLabelValues("success").Inc()
	logger.Info("SQL executed", zap.Int("rows", res.RowCount))

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, res, p.opts.CacheTTL); err != nil {
			logger.Warn("Cache write failed", zap.Error(err))
		}
	}

	return res, false, nil
}

func (p *Pipeline) explainNoData(ctx context.Context, utterance string, failed bool) string {
	var avail *models.Availability
	if p.avail != nil {
		a, err := p.avail.Availability(ctx)
		if err != nil {
			logger.Warn("Failed to load data availability", zap.Error(err))
		} else {
			avail = a
		}
	}

	text, err := p.complete(ctx, "no_data", llm.CompletionRequest{
		SystemPrompt: preamble,
		UserPrompt:   noDataPrompt(utterance, avail, failed),
		Temperature:  llm.Temperature(0.2),
	})

	// The explanation must not carry a query block or a leftover placeholder.
	reply := llm.ParseReply(text)
	if err != nil || reply.Kind == llm.ReplyQuery || strings.TrimSpace(text) == "" || placeholder.MatchString(text) {
		text = noDataMessage(avail)
	}

	logger.Info("No-data explanation issued", zap.Bool("query_failed", failed))
	return strings.TrimSpace(text)
}

func (p *Pipeline) complete(ctx context.Context, purpose string, req llm.CompletionRequest) (string, error) {
	logger.Debug("LLM call started", zap.String("purpose", purpose))

	resp, err := p.llm.Complete(ctx, req)
	if err != nil {
		metrics.LLMCalls.WithLabelValues(purpose, "error").Inc()
		logger.Error("LLM call failed", zap.String("purpose", purpose), zap.Error(err))
		return "", err
	}

	metrics.LLMCalls.WithLabelValues(purpose, "success").Inc()
	metrics.LLMTokensUsed.WithLabelValues(p.opts.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(p.opts.Model, "completion").Add(float64(resp.Usage.CompletionTokens))
	logger.Debug("LLM call finished",
		zap.String("purpose", purpose),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return resp.Content, nil
}
