package clocktick

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"clocktick/pkg/codec"
	"clocktick/pkg/logx"
	"clocktick/pkg/route"
	"clocktick/pkg/schedule"
)

// JobCreation is the service's answer to a successful scheduling request.
type JobCreation struct {
	JobID string `json:"job_id"`
}

type jobRequest struct {
	StartFrom     json.RawMessage `json:"start_from"`
	RunEvery      *schedule.Delta `json:"run_every"`
	EndpointID    string          `json:"endpoint_id"`
	EncryptedData string          `json:"encrypted_data"`
	JobType       string          `json:"job_type"`
}

// ScheduleJob submits one invocation of the handler at path. The effective
// endpoint is the route's override if any, else the server default. args
// must match the handler's declared parameters (the leading context
// excluded); the mismatch is caught locally, before any network traffic.
func (s *Server) ScheduleJob(
	ctx context.Context, path string, props schedule.Builder, args ...any,
) (JobCreation, error) {
	leaf, err := s.tree.Resolve(path)
	if err != nil {
		return JobCreation{}, err
	}
	if len(args) != leaf.Arity() {
		return JobCreation{}, fmt.Errorf("%w: %q takes %d, got %d", route.ErrArityMismatch, path, leaf.Arity(), len(args))
	}

	encoded, err := codec.EncodeArgs(args)
	if err != nil {
		return JobCreation{}, err
	}
	sealed, err := s.cipher.Seal(encoded)
	if err != nil {
		return JobCreation{}, err
	}

	p := props.Properties()
	body := jobRequest{
		StartFrom:     p.StartFrom,
		RunEvery:      p.RunEvery,
		EndpointID:    leaf.Endpoint,
		EncryptedData: sealed,
		JobType:       path,
	}

	var resp JobCreation
	err = sendRequest(ctx, s.client, s.apiKey, s.jobsURL(p.CustomID), http.MethodPost, body, &resp)
	if err != nil {
		return JobCreation{}, err
	}
	s.log.Debug("job scheduled",
		logx.String("job_type", path),
		logx.String("job_id", resp.JobID),
		logx.String("endpoint_id", leaf.Endpoint),
	)
	return resp, nil
}

// DeleteJob removes a scheduled job. An empty id is rejected locally with
// ErrJobIDRequired; no request is issued.
func (s *Server) DeleteJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		return ErrJobIDRequired
	}
	if err := sendRequest(ctx, s.client, s.apiKey, s.jobsURL(jobID), http.MethodDelete, nil, nil); err != nil {
		return err
	}
	s.log.Debug("job deleted", logx.String("job_id", jobID))
	return nil
}
