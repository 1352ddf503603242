package queue

import (
	"io"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/ajitpratap0/nebula-hub/pkg/json"
)

// envelope is what a job stores as its asynq result: the latest progress
// and, once the job ends, its outcome
type envelope struct {
	Progress int         `json:"progress"`
	Result   *JobOutcome `json:"result,omitempty"`
}

// recorder writes progress envelopes through the task's result writer.
// Tasks built outside a worker have no writer and only keep the values in memory.
type recorder struct {
	mu   sync.Mutex
	w    io.Writer
	last envelope
}

func newRecorder(task *asynq.Task) *recorder {
	r := &recorder{}
	if rw := task.ResultWriter(); rw != nil {
		r.w = rw
	}
	return r
}

func (r *recorder) progress(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if percent < r.last.Progress {
		return
	}
	r.last.Progress = percent
	r.write()
}

func (r *recorder) finish(outcome *JobOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if outcome == nil {
		return
	}
	r.last.Result = outcome
	r.write()
}

func (r *recorder) write() {
	if r.w == nil {
		return
	}
	data, err := json.Marshal(r.last)
	if err != nil {
		return
	}
	_, _ = r.w.Write(data)
}

// decodeEnvelope reads a stored result; results that are not envelopes are returned raw
func decodeEnvelope(data []byte) (int, interface{}) {
	if len(data) == 0 {
		return 0, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && (env.Progress > 0 || env.Result != nil) {
		if env.Result == nil {
			return env.Progress, nil
		}
		return env.Progress, env.Result
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, string(data)
	}
	return 0, raw
}
