package agentrun

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/cortex/pkg/models"
)

// cancelled handles a cooperative cancellation: no partial tool batch is
// persisted past this point (the caller checks r.check() before committing
// one), the job moves to cancelled with its elapsed time and step count
// recorded on the activity feed.
func (r *run) cancelled(ctx context.Context, step int) (*models.Job, error) {
	e := r.engine
	jobID := r.job.ID
	elapsed := time.Since(r.startedAt).Round(time.Second)

	if err := e.queue.SetStatus(ctx, jobID, models.JobCancelled, nil); err != nil {
		return nil, err
	}
	e.emitActivity(ctx, jobID, models.ActivityCancelled, "job cancelled",
		withDetail(fmt.Sprintf("step %d, %s elapsed", step, elapsed)))
	return e.queue.GetJob(ctx, jobID)
}

// finish persists a terminal status (completed, failed, or timed out) along
// with the job's result text or error message.
func (r *run) finish(ctx context.Context, status models.JobStatus, result, errMsg string, step int) (*models.Job, error) {
	e := r.engine
	jobID := r.job.ID
	elapsed := time.Since(r.startedAt).Round(time.Second)

	if err := e.queue.SetStatus(ctx, jobID, status, func(j *models.Job) {
		j.Result = result
		j.Error = errMsg
	}); err != nil {
		return nil, err
	}
	if status == models.JobFailed {
		e.emitActivity(ctx, jobID, models.ActivityError, errMsg,
			withDetail(fmt.Sprintf("step %d, %s elapsed", step, elapsed)), withError())
		if e.metrics != nil {
			e.metrics.RecordError("agentrun", "job_failed")
		}
	}
	return e.queue.GetJob(ctx, jobID)
}
