package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingJob struct {
	name string
	runs int32
	fail bool
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	if j.fail {
		return assertError("boom")
	}
	return nil
}

type assertError string

func (e assertError) Error() string { return string(e) }

func TestRunNowExecutesJobImmediately(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "test"}

	err := s.RunNow(context.Background(), job)
	assert.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.runs))
}

func TestRunNowPropagatesJobError(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "failing", fail: true}

	err := s.RunNow(context.Background(), job)
	assert.Error(t, err)
}

func TestStartIsIdempotent(t *testing.T) {
	s := New(zerolog.Nop())
	s.Start()
	s.Start() // must not panic or double-start the underlying cron
	s.Stop(time.Second)
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	s := New(zerolog.Nop())
	s.Stop(time.Second) // must not block or panic
}

func TestAddJobRunsOnEverySchedule(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "ticker"}

	err := s.AddJob("@every 1s", job)
	assert.NoError(t, err)

	s.Start()
	defer s.Stop(time.Second)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&job.runs) >= 1
	}, 3*time.Second, 50*time.Millisecond)
}
