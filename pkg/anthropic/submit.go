package anthropic

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/assessment-cli/internal/resilience"
)

// Submitter wraps a Client with a submission rate limiter, retries for
// transient failures, and a circuit breaker that opens after repeated
// provider errors. All pipeline batch traffic goes through one Submitter
// so the breaker sees every failure.
type Submitter struct {
	client  Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithSubmitRate sets the request rate and burst for batch submission.
func WithSubmitRate(perSec float64, burst int) SubmitterOption {
	return func(s *Submitter) {
		s.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithRetryConfig overrides the retry policy for submissions.
func WithRetryConfig(cfg resilience.RetryConfig) SubmitterOption {
	return func(s *Submitter) {
		s.retry = cfg
	}
}

// NewSubmitter creates a Submitter around client with sane defaults:
// 2 req/s with burst 4, default retry policy, and a breaker that opens
// after 5 consecutive transient failures.
func NewSubmitter(client Client, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		retry:   resilience.DefaultRetryConfig(),
		breaker: resilience.NewCircuitBreaker(5, 60*time.Second),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.OnRetry = resilience.RetryLogger("anthropic", "submit")
	return s
}

// SubmitBatch submits a batch request, waiting on the rate limiter and
// retrying transient failures. Rate-limit responses consume a separate,
// larger attempt budget before surfacing ErrRateLimitExhausted.
func (s *Submitter) SubmitBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "anthropic: submit rate limit wait")
	}

	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*BatchResponse, error) {
		var resp *BatchResponse
		err := s.breaker.Execute(ctx, func(ctx context.Context) error {
			var inner error
			resp, inner = s.client.CreateBatch(ctx, req)
			return inner
		})
		return resp, err
	})
}

// SendMessage sends a single message through the limiter, retry policy,
// and breaker. Used for the cache primer and any sequential calls.
func (s *Submitter) SendMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "anthropic: message rate limit wait")
	}

	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*MessageResponse, error) {
		var resp *MessageResponse
		err := s.breaker.Execute(ctx, func(ctx context.Context) error {
			var inner error
			resp, inner = s.client.CreateMessage(ctx, req)
			return inner
		})
		return resp, err
	})
}

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint set to a 1-hour TTL. Phases that fan a shared system prompt
// across a batch warm the cache once with WarmCache, then submit the
// batch against the warm prefix.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "1h",
			},
		},
	}
}

// WarmCache sends a single throwaway message to populate the prompt
// cache for req's system blocks. The response content is discarded.
func (s *Submitter) WarmCache(ctx context.Context, req MessageRequest) error {
	resp, err := s.SendMessage(ctx, req)
	if err != nil {
		return eris.Wrap(err, "anthropic: cache primer")
	}
	resp.Usage.LogCost(req.Model, "primer")
	return nil
}

// Poll waits for the batch to reach a terminal status.
func (s *Submitter) Poll(ctx context.Context, batchID string, opts ...PollOption) (*BatchResponse, error) {
	return PollBatch(ctx, s.client, batchID, opts...)
}

// Results drains a completed batch into per-item successes and failures.
func (s *Submitter) Results(ctx context.Context, batchID string) (*BatchCollectResult, error) {
	iter, err := s.client.GetBatchResults(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return CollectBatchResultsDetailed(iter)
}

// Cancel requests cancellation of an in-flight batch.
func (s *Submitter) Cancel(ctx context.Context, batchID string) error {
	_, err := s.client.CancelBatch(ctx, batchID)
	return err
}

// RunBatch submits a batch, polls it to completion, and collects
// per-item results. On poll timeout the batch is canceled best-effort
// before the error surfaces.
func (s *Submitter) RunBatch(ctx context.Context, req BatchRequest, pollOpts ...PollOption) (*BatchCollectResult, error) {
	batch, err := s.SubmitBatch(ctx, req)
	if err != nil {
		return nil, err
	}

	zap.L().Info("anthropic: batch submitted",
		zap.String("batch_id", batch.ID),
		zap.Int("requests", len(req.Requests)),
	)

	ended, err := PollBatch(ctx, s.client, batch.ID, pollOpts...)
	if err != nil {
		if eris.Is(err, ErrPollTimeout) {
			if _, cancelErr := s.client.CancelBatch(context.WithoutCancel(ctx), batch.ID); cancelErr != nil {
				zap.L().Warn("anthropic: cancel after poll timeout failed",
					zap.String("batch_id", batch.ID),
					zap.Error(cancelErr),
				)
			}
		}
		return nil, err
	}

	iter, err := s.client.GetBatchResults(ctx, ended.ID)
	if err != nil {
		return nil, err
	}

	return CollectBatchResultsDetailed(iter)
}
