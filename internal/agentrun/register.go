package agentrun

import "github.com/haasonsaas/cortex/internal/tools"

// jobRegistry builds the tool set for one job run: ask_user,
// create_scheduled_job, and update_scheduled_job are only meaningful while a
// concrete job_id exists to pause/resume or attribute a new schedule to;
// list_scheduled_jobs carries no per-job state but is added alongside them
// for symmetry. A fresh child registry is built per run (copying the
// engine's static tools) rather than mutating the shared registry in place,
// since multiple jobs can run concurrently across different conversations
// and a shared, globally keyed registry would let one job's ask_user
// collide with another's.
func (r *run) jobRegistry() *tools.Registry {
	reg := tools.NewRegistry()
	for _, t := range r.engine.registry.All() {
		reg.Register(t)
	}
	reg.Register(&AskUserTool{
		Queue:           r.engine.queue,
		Store:           r.engine.store,
		JobID:           r.job.ID,
		ConversationID:  r.job.ConversationID,
		Headless:        r.job.Headless,
		DefaultResponse: r.job.AskUserDefault,
	})
	reg.Register(&CreateScheduledJobTool{ConversationID: r.job.ConversationID, API: r.engine.scheduler})
	reg.Register(&UpdateScheduledJobTool{API: r.engine.scheduler})
	reg.Register(&ListScheduledJobsTool{API: r.engine.scheduler})
	reg.Register(&ExploreTool{Executor: r.engine.exploreExec, Queue: r.engine.queue, JobID: r.job.ID})
	reg.Register(&DelegateTaskTool{Executor: r.engine.delegateExec, Queue: r.engine.queue, JobID: r.job.ID})
	return reg
}
