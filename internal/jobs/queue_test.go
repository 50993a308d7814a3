package jobs

import (
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/matryer/is"
)

func TestIsTaskConflictMatchesSentinels(t *testing.T) {
	is := is.New(t)

	is.True(isTaskConflict(asynq.ErrDuplicateTask))
	is.True(isTaskConflict(asynq.ErrTaskIDConflict))
	is.True(isTaskConflict(errors.New("task ID conflicts with another task")))
	is.True(isTaskConflict(errors.New("duplicate task detected")))
	is.True(!isTaskConflict(errors.New("redis connection refused")))
}

func TestTaskConstantsAreDistinct(t *testing.T) {
	is := is.New(t)

	seen := map[string]bool{}
	for _, name := range []string{TaskScanLibrary, TaskGenerateTrickplay, TaskTranscodeReap, TaskExpireSessions} {
		is.True(!seen[name])
		seen[name] = true
	}
}
