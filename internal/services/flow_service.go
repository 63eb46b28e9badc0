package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/calmbridge/checkin/internal/apiclient"
	"github.com/calmbridge/checkin/internal/models"
)

// FlowState names the traversal states.
type FlowState string

const (
	FlowLoading    FlowState = "loading"
	FlowReady      FlowState = "ready"
	FlowSubmitting FlowState = "submitting"
	// FlowEmpty is the "nothing to do" terminal outcome for a fetched
	// questionnaire with zero questions: not completed (never started)
	// and not an error.
	FlowEmpty     FlowState = "empty"
	FlowError     FlowState = "error"
	FlowCompleted FlowState = "completed"
)

var (
	// ErrSubmissionInFlight rejects a submit attempt while one is
	// already outstanding. No network call is made.
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	// ErrNoActiveQuestion rejects a submit when no traversal is
	// accepting answers.
	ErrNoActiveQuestion = errors.New("no question is awaiting an answer")
)

// QuestionnaireAPI is the flow's view of the remote service.
type QuestionnaireAPI interface {
	FetchNext(ctx context.Context) (*models.Questionnaire, error)
	SubmitAnswer(ctx context.Context, questionnaireID, questionID, answer string) error
	MarkCompleted(ctx context.Context, questionnaireID string) error
}

// Snapshot is a read-only view of the traversal for the presentation layer.
type Snapshot struct {
	State       FlowState
	Index       int
	Total       int
	Progress    float64
	Current     *models.Question
	ErrMessage  string
	AuthExpired bool
}

// Flow owns one questionnaire traversal: current position, collected
// answers, submission-in-flight state and completion/retake transitions.
// One user action is processed at a time; the submitting state, not a lock,
// is what serializes network calls.
type Flow struct {
	api   QuestionnaireAPI
	creds CredentialStore

	mu            sync.Mutex
	state         FlowState
	questionnaire *models.Questionnaire
	index         int
	answers       map[string]string
	lastErr       error
	errMessage    string
	authExpired   bool
	generation    uint64
}

func NewFlow(api QuestionnaireAPI, creds CredentialStore) *Flow {
	return &Flow{
		api:     api,
		creds:   creds,
		state:   FlowLoading,
		answers: map[string]string{},
	}
}

// Start fetches the questionnaire and readies the traversal. Callable again
// from the error state to retry a failed fetch.
func (f *Flow) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.state == FlowSubmitting {
		f.mu.Unlock()
		return ErrSubmissionInFlight
	}
	f.state = FlowLoading
	f.questionnaire = nil
	f.index = 0
	f.answers = map[string]string{}
	f.lastErr = nil
	f.errMessage = ""
	f.authExpired = false
	gen := f.generation
	f.mu.Unlock()

	q, err := f.api.FetchNext(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.generation {
		// The user left this traversal; a late result must not touch it.
		return nil
	}
	if err != nil {
		f.fail(err)
		return err
	}
	f.questionnaire = q
	if len(q.Questions) == 0 {
		f.state = FlowEmpty
		return nil
	}
	f.state = FlowReady
	return nil
}

// SubmitAnswer submits the user's answer for the current question. Choice
// questions submit the option's numeric value, resolved from the display
// label; an unmatched label falls back to the raw label text rather than
// blocking the user. The answer is recorded locally only after the server
// accepts it, so a failed submit leaves the same question pending with
// nothing skipped.
func (f *Flow) SubmitAnswer(ctx context.Context, label string) error {
	f.mu.Lock()
	if f.state == FlowSubmitting {
		f.mu.Unlock()
		return ErrSubmissionInFlight
	}
	if f.questionnaire == nil || (f.state != FlowReady && f.state != FlowError) {
		f.mu.Unlock()
		return ErrNoActiveQuestion
	}
	question := f.questionnaire.Questions[f.index]
	qnID := f.questionnaire.ID
	wire := label
	if question.Kind == models.InputKindChoice {
		if v, ok := question.OptionValue(label); ok {
			wire = strconv.Itoa(v)
		}
	}
	f.state = FlowSubmitting
	gen := f.generation
	f.mu.Unlock()

	err := f.api.SubmitAnswer(ctx, qnID, question.ID, wire)

	f.mu.Lock()
	if gen != f.generation {
		f.mu.Unlock()
		return nil
	}
	if err != nil {
		f.fail(err)
		f.mu.Unlock()
		return err
	}
	f.answers[question.ID] = label
	finished := f.index == len(f.questionnaire.Questions)-1
	if finished {
		f.state = FlowCompleted
	} else {
		f.index++
		f.state = FlowReady
	}
	f.mu.Unlock()

	if finished {
		// Completion is already decided locally; the server-side record
		// is best effort.
		if err := f.api.MarkCompleted(ctx, qnID); err != nil {
			log.Printf("flow: mark questionnaire completed: %v", err)
		}
	}
	return nil
}

// Retake resets index, answers and completion together, as one transition.
func (f *Flow) Retake() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FlowCompleted {
		return
	}
	f.index = 0
	f.answers = map[string]string{}
	f.state = FlowReady
}

// Abandon detaches the controller from any in-flight request. A response
// arriving after this call is dropped instead of mutating state the user has
// already left.
func (f *Flow) Abandon() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
}

// Snapshot returns a copy of the observable traversal state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := Snapshot{
		State:       f.state,
		Index:       f.index,
		ErrMessage:  f.errMessage,
		AuthExpired: f.authExpired,
	}
	if f.questionnaire != nil {
		snap.Total = len(f.questionnaire.Questions)
	}
	switch {
	case f.state == FlowCompleted:
		snap.Progress = 1
	case snap.Total > 0 && (f.state == FlowReady || f.state == FlowSubmitting || f.state == FlowError):
		snap.Progress = float64(f.index+1) / float64(snap.Total)
	}
	if snap.Total > 0 && f.index < snap.Total && f.state != FlowCompleted && f.state != FlowEmpty {
		q := f.questionnaire.Questions[f.index]
		snap.Current = &q
	}
	return snap
}

// Answers returns a copy of the recorded answers, keyed by question id.
func (f *Flow) Answers() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.answers))
	for k, v := range f.answers {
		out[k] = v
	}
	return out
}

// LastError returns the underlying error of the current error state, with
// its APIError intact for retry logic.
func (f *Flow) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Questionnaire returns the fetched questionnaire, nil before a successful
// fetch.
func (f *Flow) Questionnaire() *models.Questionnaire {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.questionnaire
}

// fail moves to the error state, classifying err for display and applying
// the 401 policy: the local credential is cleared so the caller routes to
// re-authentication instead of showing a raw error. Caller holds f.mu.
func (f *Flow) fail(err error) {
	f.state = FlowError
	f.lastErr = err
	f.errMessage = ClassifyError(err)
	if apiclient.IsAuth(err) {
		f.authExpired = true
		if f.creds != nil {
			f.creds.Clear()
		}
	}
}

// ClassifyError maps an error to the message the presentation layer shows.
// A 404 on fetch means "nothing assigned this period" — a normal outcome,
// not an alarm.
func ClassifyError(err error) string {
	ae, ok := apiclient.AsAPIError(err)
	if !ok {
		return err.Error()
	}
	switch {
	case ae.Status == 0:
		return "Network error. Please check your connection."
	case apiclient.IsAuth(err):
		return "Session expired. Please log in again."
	case apiclient.IsNotFound(err):
		return "No questionnaire available for this week. Please check back later."
	default:
		if ae.Message != "" && ae.Message != fmt.Sprintf("HTTP %d", ae.Status) {
			return ae.Message
		}
		return fmt.Sprintf("Server error (%d)", ae.Status)
	}
}
