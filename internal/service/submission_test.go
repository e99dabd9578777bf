package service

import (
	"context"
	"errors"
	"testing"

	"github.com/castos/studio/internal/model"
)

type fakeRunner struct {
	calls   int
	got     *model.SubmitRequest
	project *model.Project
	err     error
}

func (f *fakeRunner) RunProject(ctx context.Context, req *model.SubmitRequest) (*model.Project, error) {
	f.calls++
	f.got = req
	return f.project, f.err
}

func validRequest() *model.SubmitRequest {
	return &model.SubmitRequest{
		Title:    "  Heist  ",
		Plot:     "A crew plans one last job.",
		Budget:   5000000,
		Industry: model.IndustryHollywood,
	}
}

func TestSubmit_Success(t *testing.T) {
	runner := &fakeRunner{project: &model.Project{ID: "17", Status: model.ProjectStatusPending}}

	resp, err := NewSubmissionService(nil).Submit(context.Background(), runner, validRequest())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if resp.ID != "17" || resp.Status != model.ProjectStatusPending {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.CreatedAt.IsZero() {
		t.Error("expected a creation time")
	}
	if runner.got.Title != "Heist" {
		t.Errorf("expected trimmed title, got %q", runner.got.Title)
	}
}

func TestSubmit_ValidationSkipsNetwork(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*model.SubmitRequest)
		field string
	}{
		{"blank title", func(r *model.SubmitRequest) { r.Title = "   " }, "Title"},
		{"empty plot", func(r *model.SubmitRequest) { r.Plot = "" }, "Plot"},
		{"zero budget", func(r *model.SubmitRequest) { r.Budget = 0 }, "Budget"},
		{"negative budget", func(r *model.SubmitRequest) { r.Budget = -10 }, "Budget"},
		{"unknown industry", func(r *model.SubmitRequest) { r.Industry = "Nollywood" }, "Industry"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{}
			req := validRequest()
			tc.edit(req)

			_, err := NewSubmissionService(nil).Submit(context.Background(), runner, req)
			if !errors.Is(err, ErrInvalidSubmission) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Fields[tc.field] == "" {
				t.Errorf("expected %s to be flagged, got %v", tc.field, err)
			}
			if runner.calls != 0 {
				t.Error("invalid request reached the backend")
			}
		})
	}
}

func TestSubmit_BackendErrorNotRetried(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom")}

	if _, err := NewSubmissionService(nil).Submit(context.Background(), runner, validRequest()); err == nil {
		t.Fatal("expected error")
	}
	if runner.calls != 1 {
		t.Errorf("expected one attempt, got %d", runner.calls)
	}
}

func TestSubmit_MissingIDIsAnError(t *testing.T) {
	runner := &fakeRunner{project: &model.Project{Status: model.ProjectStatusPending}}

	if _, err := NewSubmissionService(nil).Submit(context.Background(), runner, validRequest()); err == nil {
		t.Fatal("expected error for missing id")
	}
}
