package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/calmbridge/checkin/internal/apiclient"
	"github.com/calmbridge/checkin/internal/models"
)

type submittedAnswer struct {
	questionnaireID string
	questionID      string
	answer          string
}

type stubAPI struct {
	mu            sync.Mutex
	questionnaire *models.Questionnaire
	fetchErr      error
	submitErr     error
	submits       []submittedAnswer
	marks         []string
	gate          chan struct{} // when set, SubmitAnswer blocks until closed
}

func (s *stubAPI) FetchNext(context.Context) (*models.Questionnaire, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.questionnaire, nil
}

func (s *stubAPI) SubmitAnswer(_ context.Context, questionnaireID, questionID, answer string) error {
	s.mu.Lock()
	gate := s.gate
	err := s.submitErr
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.submits = append(s.submits, submittedAnswer{questionnaireID, questionID, answer})
	s.mu.Unlock()
	return nil
}

func (s *stubAPI) MarkCompleted(_ context.Context, questionnaireID string) error {
	s.mu.Lock()
	s.marks = append(s.marks, questionnaireID)
	s.mu.Unlock()
	return nil
}

func threeQuestionSurvey() *models.Questionnaire {
	return &models.Questionnaire{
		ID:    "qn1",
		Title: "Weekly Check-in",
		Questions: []models.Question{
			{ID: "q1", Text: "What's your name?", Kind: models.InputKindText, Placeholder: DefaultPlaceholder},
			{ID: "q2", Text: "How do you feel?", Kind: models.InputKindChoice, Options: []models.Option{
				{Label: "Anxious", Value: 1},
				{Label: "Tense", Value: 2},
				{Label: "Calm", Value: 3},
			}},
			{ID: "q3", Text: "Anything else?", Kind: models.InputKindText, Placeholder: DefaultPlaceholder},
		},
	}
}

func startedFlow(t *testing.T, api *stubAPI, creds CredentialStore) *Flow {
	t.Helper()
	f := NewFlow(api, creds)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	return f
}

func TestFlowHappyPathTraversal(t *testing.T) {
	api := &stubAPI{questionnaire: threeQuestionSurvey()}
	f := startedFlow(t, api, &stubCreds{token: "tok", has: true})

	snap := f.Snapshot()
	if snap.State != FlowReady || snap.Index != 0 || snap.Total != 3 {
		t.Fatalf("unexpected snapshot after start: %+v", snap)
	}
	if snap.Current == nil || snap.Current.ID != "q1" {
		t.Fatalf("expected q1 current, got %+v", snap.Current)
	}

	if err := f.SubmitAnswer(context.Background(), "Alex"); err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	snap = f.Snapshot()
	if snap.Index != 1 || snap.State != FlowReady {
		t.Fatalf("expected index 1 ready, got %+v", snap)
	}
	if got := f.Answers(); got["q1"] != "Alex" || len(got) != 1 {
		t.Fatalf("unexpected answers %v", got)
	}

	// Choice answers go up as the option's numeric value, not the label.
	if err := f.SubmitAnswer(context.Background(), "Calm"); err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	if api.submits[1].answer != "3" || api.submits[1].questionID != "q2" || api.submits[1].questionnaireID != "qn1" {
		t.Fatalf("unexpected wire submission %+v", api.submits[1])
	}
	if got := f.Answers(); got["q2"] != "Calm" {
		t.Fatalf("answers should keep the display label, got %v", got)
	}

	if err := f.SubmitAnswer(context.Background(), "all good"); err != nil {
		t.Fatalf("submit q3: %v", err)
	}
	snap = f.Snapshot()
	if snap.State != FlowCompleted || snap.Progress != 1 {
		t.Fatalf("expected completed, got %+v", snap)
	}
	if len(api.marks) != 1 || api.marks[0] != "qn1" {
		t.Fatalf("expected mark-complete call, got %v", api.marks)
	}
}

func TestFlowUnmatchedChoiceLabelFallsBackToRawText(t *testing.T) {
	api := &stubAPI{questionnaire: threeQuestionSurvey()}
	f := startedFlow(t, api, nil)
	if err := f.SubmitAnswer(context.Background(), "Alex"); err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	if err := f.SubmitAnswer(context.Background(), "Serene"); err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	if api.submits[1].answer != "Serene" {
		t.Fatalf("expected raw label fallback, got %q", api.submits[1].answer)
	}
}

func TestFlowFetchNotFoundIsNoContentClassification(t *testing.T) {
	api := &stubAPI{fetchErr: &apiclient.APIError{Message: "none assigned", Status: http.StatusNotFound}}
	f := NewFlow(api, nil)
	if err := f.Start(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
	snap := f.Snapshot()
	if snap.State != FlowError {
		t.Fatalf("expected error state, got %s", snap.State)
	}
	if snap.ErrMessage != "No questionnaire available for this week. Please check back later." {
		t.Fatalf("404 must classify as no-content, got %q", snap.ErrMessage)
	}
	if !apiclient.IsNotFound(f.LastError()) {
		t.Fatalf("underlying APIError must be preserved, got %v", f.LastError())
	}
}

func TestFlowAuthFailureClearsCredentialAndKeepsAnswers(t *testing.T) {
	api := &stubAPI{questionnaire: threeQuestionSurvey()}
	creds := &stubCreds{token: "tok", has: true}
	f := startedFlow(t, api, creds)

	if err := f.SubmitAnswer(context.Background(), "Alex"); err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	api.submitErr = &apiclient.APIError{Message: "token expired", Status: http.StatusUnauthorized}

	err := f.SubmitAnswer(context.Background(), "Calm")
	if !apiclient.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if _, ok := creds.Get(); ok {
		t.Fatalf("expected credential cleared on 401")
	}
	snap := f.Snapshot()
	if !snap.AuthExpired || snap.State != FlowError {
		t.Fatalf("expected auth-expired error state, got %+v", snap)
	}
	if snap.Index != 1 {
		t.Fatalf("index must not move on failure, got %d", snap.Index)
	}
	if got := f.Answers(); len(got) != 1 || got["q1"] != "Alex" {
		t.Fatalf("failed answer must not be recorded, got %v", got)
	}
}

func TestFlowRetryResendsSameQuestion(t *testing.T) {
	api := &stubAPI{questionnaire: threeQuestionSurvey()}
	f := startedFlow(t, api, nil)
	if err := f.SubmitAnswer(context.Background(), "Alex"); err != nil {
		t.Fatalf("submit q1: %v", err)
	}

	api.submitErr = &apiclient.APIError{Message: "boom", Status: http.StatusInternalServerError}
	if err := f.SubmitAnswer(context.Background(), "Calm"); err == nil {
		t.Fatalf("expected submit failure")
	}
	api.submitErr = nil

	if err := f.SubmitAnswer(context.Background(), "Calm"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	last := api.submits[len(api.submits)-1]
	if last.questionID != "q2" || last.answer != "3" {
		t.Fatalf("retry must target the same question, got %+v", last)
	}
	if f.Snapshot().Index != 2 {
		t.Fatalf("expected advance after successful retry, got %d", f.Snapshot().Index)
	}
}

func TestFlowRejectsConcurrentSubmission(t *testing.T) {
	api := &stubAPI{questionnaire: threeQuestionSurvey(), gate: make(chan struct{})}
	f := startedFlow(t, api, nil)

	done := make(chan error, 1)
	go func() { done <- f.SubmitAnswer(context.Background(), "Alex") }()

	// Wait until the flow reports an in-flight submission.
	for f.Snapshot().State != FlowSubmitting {
		time.Sleep(time.Millisecond)
	}

	if err := f.SubmitAnswer(context.Background(), "again"); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}
	if err := f.Start(context.Background()); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected Start rejected while submitting, got %v", err)
	}

	close(api.gate)
	if err := <-done; err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	if len(api.submits) != 1 {
		t.Fatalf("rejected attempt must not reach the network, got %d calls", len(api.submits))
	}
}

func TestFlowIndexIsMonotonic(t *testing.T) {
	api := &stubAPI{questionnaire: threeQuestionSurvey()}
	f := startedFlow(t, api, nil)
	prev := f.Snapshot().Index
	for _, ans := range []string{"Alex", "Calm", "done"} {
		if err := f.SubmitAnswer(context.Background(), ans); err != nil {
			t.Fatalf("submit %q: %v", ans, err)
		}
		cur := f.Snapshot().Index
		if cur != prev && cur != prev+1 {
			t.Fatalf("index jumped from %d to %d", prev, cur)
		}
		prev = cur
	}
}

func TestFlowRetakeResetsAtomically(t *testing.T) {
	api := &stubAPI{questionnaire: threeQuestionSurvey()}
	f := startedFlow(t, api, nil)
	for _, ans := range []string{"Alex", "Calm", "done"} {
		if err := f.SubmitAnswer(context.Background(), ans); err != nil {
			t.Fatalf("submit %q: %v", ans, err)
		}
	}
	if f.Snapshot().State != FlowCompleted {
		t.Fatalf("expected completed before retake")
	}

	f.Retake()
	snap := f.Snapshot()
	if snap.State != FlowReady || snap.Index != 0 {
		t.Fatalf("expected ready at index 0 after retake, got %+v", snap)
	}
	if got := f.Answers(); len(got) != 0 {
		t.Fatalf("expected empty answers after retake, got %v", got)
	}

	// Retake is only meaningful from completed.
	if err := f.SubmitAnswer(context.Background(), "again"); err != nil {
		t.Fatalf("submit after retake: %v", err)
	}
	f.Retake()
	if snap := f.Snapshot(); snap.Index != 1 {
		t.Fatalf("retake from ready must be a no-op, got %+v", snap)
	}
}

func TestFlowEmptyQuestionnaireIsNeutralOutcome(t *testing.T) {
	api := &stubAPI{questionnaire: &models.Questionnaire{ID: "qn-empty", Title: "Nothing"}}
	f := NewFlow(api, nil)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	snap := f.Snapshot()
	if snap.State != FlowEmpty {
		t.Fatalf("expected empty state, got %s", snap.State)
	}
	if snap.ErrMessage != "" {
		t.Fatalf("empty is not an error, got %q", snap.ErrMessage)
	}
	if err := f.SubmitAnswer(context.Background(), "x"); !errors.Is(err, ErrNoActiveQuestion) {
		t.Fatalf("expected ErrNoActiveQuestion, got %v", err)
	}
}

func TestFlowAbandonDropsLateResponse(t *testing.T) {
	api := &stubAPI{questionnaire: threeQuestionSurvey(), gate: make(chan struct{})}
	f := startedFlow(t, api, nil)

	done := make(chan error, 1)
	go func() { done <- f.SubmitAnswer(context.Background(), "Alex") }()
	for f.Snapshot().State != FlowSubmitting {
		time.Sleep(time.Millisecond)
	}

	f.Abandon()
	close(api.gate)
	if err := <-done; err != nil {
		t.Fatalf("abandoned submission should report nothing, got %v", err)
	}
	if got := f.Answers(); len(got) != 0 {
		t.Fatalf("late response must not record answers, got %v", got)
	}
	if f.Snapshot().Index != 0 {
		t.Fatalf("late response must not advance the index")
	}
}
