package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/pkg/anthropic"
)

// runBatch submits one provider batch for a phase, records the job in the
// index, polls to completion, and collects per-item results. One failed
// item never fails the batch; callers substitute fallbacks per item. On
// poll timeout the provider batch is cancelled best-effort.
func (p *Pipeline) runBatch(ctx context.Context, entry *model.AssessmentIndexEntry, phase model.Phase, req anthropic.BatchRequest) (*anthropic.BatchCollectResult, error) {
	batch, err := p.ai.SubmitBatch(ctx, req)
	if err != nil {
		return nil, err
	}

	rec := &model.BatchJobRecord{
		AssessmentRunID: entry.AssessmentRunID,
		Phase:           phase,
		ProviderBatchID: batch.ID,
		RequestCount:    len(req.Requests),
		Status:          model.BatchJobSubmitted,
	}
	if err := p.idx.Store().CreateBatchJob(ctx, rec); err != nil {
		zap.L().Warn("pipeline: failed to record batch job",
			zap.String("run_id", entry.AssessmentRunID),
			zap.String("batch_id", batch.ID),
			zap.Error(err),
		)
	}

	ended, err := p.ai.Poll(ctx, batch.ID,
		anthropic.WithPollInterval(p.cfg.Batch.PollInterval()),
		anthropic.WithPollCap(p.cfg.Batch.PollCap()),
		anthropic.WithPollTimeout(p.cfg.Batch.PollTimeout()),
	)
	if err != nil {
		status := model.BatchJobErrored
		if eris.Is(err, anthropic.ErrPollTimeout) || ctx.Err() != nil {
			// Cancel the provider side so abandoned work does not bill.
			if cancelErr := p.ai.Cancel(context.WithoutCancel(ctx), batch.ID); cancelErr != nil {
				zap.L().Warn("pipeline: batch cancel failed",
					zap.String("batch_id", batch.ID),
					zap.Error(cancelErr),
				)
			}
			status = model.BatchJobCancelled
		}
		p.updateBatchJob(ctx, rec.JobID, status)
		return nil, err
	}

	result, err := p.ai.Results(ctx, ended.ID)
	if err != nil {
		p.updateBatchJob(ctx, rec.JobID, model.BatchJobErrored)
		return nil, err
	}

	p.updateBatchJob(ctx, rec.JobID, model.BatchJobEnded)
	return result, nil
}

func (p *Pipeline) updateBatchJob(ctx context.Context, jobID string, status model.BatchJobStatus) {
	if jobID == "" {
		return
	}
	if err := p.idx.Store().UpdateBatchJob(context.WithoutCancel(ctx), jobID, status, 0); err != nil {
		zap.L().Warn("pipeline: failed to update batch job",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

// messageRequest builds a MessageRequest with the shared system prompt.
func (p *Pipeline) messageRequest(system, user string) anthropic.MessageRequest {
	return anthropic.MessageRequest{
		Model:     p.cfg.Anthropic.AnalysisModel,
		MaxTokens: p.cfg.Anthropic.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages:  []anthropic.Message{{Role: "user", Content: user}},
	}
}
