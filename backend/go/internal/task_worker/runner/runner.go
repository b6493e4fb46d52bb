// Package runner calls the compute service that performs the numerical part
// of a task. The algorithms themselves are a black box behind an HTTP call.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"jaqpot/backend/go/internal/dispatcher"
	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/pkg/circuitbreaker"
	jhttp "jaqpot/backend/go/pkg/http"
)

// ProgressFunc records a percentage in [0, 100]. It returns an error when the
// task should stop, for example because ctx was cancelled.
type ProgressFunc func(ctx context.Context, pct float64) error

// Outcome is what a successful run produced.
type Outcome struct {
	// Result is the id or URI of the produced artifact.
	Result string
}

// Failure describes a run that failed for a reason other than cancellation.
type Failure struct {
	Code       string
	Message    string
	Details    string
	HTTPStatus int
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Runner executes the work behind a task.
type Runner interface {
	Run(ctx context.Context, task *models.Task, msg dispatcher.WorkMessage, progress ProgressFunc) (Outcome, error)
}

type computeRequest struct {
	TaskID string              `json:"taskId"`
	Type   dispatcher.WorkType `json:"type"`
	Owner  string              `json:"owner,omitempty"`
	Params dispatcher.Params   `json:"params"`
}

type computeResponse struct {
	Result string `json:"result"`
}

// HTTPRunner posts work to a compute endpoint.
type HTTPRunner struct {
	client   *jhttp.Client
	endpoint string
}

func NewHTTPRunner(client *jhttp.Client, endpoint string) *HTTPRunner {
	return &HTTPRunner{client: client, endpoint: endpoint}
}

// Run reports 10% once the request is about to be sent and leaves the final
// 100% to the caller's Complete.
func (r *HTTPRunner) Run(ctx context.Context, task *models.Task, msg dispatcher.WorkMessage, progress ProgressFunc) (Outcome, error) {
	if err := progress(ctx, 10); err != nil {
		return Outcome{}, err
	}

	var resp computeResponse
	err := r.client.PostJSON(ctx, r.endpoint, computeRequest{
		TaskID: task.ID,
		Type:   msg.Type,
		Owner:  task.CreatedBy,
		Params: msg.Params,
	}, &resp)
	if err != nil {
		return Outcome{}, classify(ctx, err)
	}

	if err := progress(ctx, 90); err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: resp.Result}, nil
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var se *jhttp.StatusError
	switch {
	case errors.As(err, &se):
		status := se.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		return &Failure{Code: "ComputeFailed", Message: "compute service rejected the task", Details: se.Body, HTTPStatus: status}
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return &Failure{Code: "ServiceUnavailable", Message: "compute service is unavailable", Details: err.Error(), HTTPStatus: http.StatusServiceUnavailable}
	default:
		return &Failure{Code: "ComputeUnreachable", Message: "compute service call failed", Details: err.Error(), HTTPStatus: http.StatusBadGateway}
	}
}
