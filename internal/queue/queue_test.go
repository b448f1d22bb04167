package queue

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/cortex/internal/store"
)

func newTestQueue(t *testing.T) *JobQueue {
	t.Helper()
	return New(store.NewMemoryStore(), 16)
}

func TestCreateJobAndDequeue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	j, err := q.CreateJob(ctx, "job-1", "conv-1", "hello", CreateOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if j.Status != "pending" {
		t.Fatalf("expected pending, got %q", j.Status)
	}
	q.Enqueue("job-1")

	id, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if id != "job-1" {
		t.Fatalf("expected job-1, got %q", id)
	}
}

func TestDequeueTimeout(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestAskUserRendezvous(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	if _, err := q.CreateJob(ctx, "job-1", "conv-1", "hi", CreateOptions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := q.SetStatus(ctx, "job-1", "running", nil); err != nil {
		t.Fatalf("set running: %v", err)
	}
	if err := q.SetQuestion(ctx, "job-1", "Which format?", []string{"PDF", "DOCX"}); err != nil {
		t.Fatalf("set question: %v", err)
	}

	done := make(chan string, 1)
	go func() {
		resp, err := q.WaitForResponse(ctx, "job-1", 2*time.Second)
		if err != nil {
			t.Errorf("wait: %v", err)
			return
		}
		done <- resp
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.SetResponse(ctx, "job-1", "PDF"); err != nil {
		t.Fatalf("set response: %v", err)
	}

	select {
	case resp := <-done:
		if resp != "PDF" {
			t.Fatalf("expected PDF, got %q", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for rendezvous")
	}

	j, err := q.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if j.Status != "running" {
		t.Fatalf("expected running after response, got %q", j.Status)
	}
}

func TestCancelUnblocksWaiter(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	if _, err := q.CreateJob(ctx, "job-1", "conv-1", "hi", CreateOptions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := q.SetQuestion(ctx, "job-1", "q?", nil); err != nil {
		t.Fatalf("set question: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := q.WaitForResponse(ctx, "job-1", 2*time.Second)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Cancel("job-1")

	select {
	case err := <-errCh:
		if err != ErrCancelled {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation to unblock waiter")
	}
}

func TestGetActiveJobForConversation(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	if _, err := q.CreateJob(ctx, "job-1", "conv-1", "hi", CreateOptions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	active := q.GetActiveJobForConversation("conv-1")
	if active == nil || active.ID != "job-1" {
		t.Fatalf("expected job-1 active, got %+v", active)
	}
	if err := q.SetStatus(ctx, "job-1", "completed", nil); err != nil {
		t.Fatalf("set completed: %v", err)
	}
	if q.GetActiveJobForConversation("conv-1") != nil {
		t.Fatal("expected no active job after completion")
	}
}
