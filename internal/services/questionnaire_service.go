package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/calmbridge/checkin/internal/models"
)

// QuestionnaireService fetches the current week's questionnaire and carries
// the per-answer submission protocol. Raw server shapes are narrowed here,
// immediately after the request client hands back the body.
type QuestionnaireService struct {
	client Requester
	locale string
}

func NewQuestionnaireService(client Requester, locale string) *QuestionnaireService {
	if locale == "" {
		locale = "en"
	}
	return &QuestionnaireService{client: client, locale: locale}
}

// FetchNext retrieves and transforms the next assigned questionnaire.
func (s *QuestionnaireService) FetchNext(ctx context.Context) (*models.Questionnaire, error) {
	raw, err := s.client.Do(ctx, http.MethodGet, "/api/questionnaire/getNextQuestionnaireForUser", nil)
	if err != nil {
		return nil, err
	}
	var env models.QuestionnaireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode questionnaire response: %w", err)
	}
	q := TransformQuestionnaire(env, s.locale)
	return &q, nil
}

// SubmitAnswer records one answer server-side. Answers go up one at a time,
// never as a bulk submission.
func (s *QuestionnaireService) SubmitAnswer(ctx context.Context, questionnaireID, questionID, answer string) error {
	body := map[string]any{
		"questionId":      questionID,
		"answer":          answer,
		"questionnaireId": questionnaireID,
	}
	_, err := s.client.Do(ctx, http.MethodPost, "/api/response/submitOrUpdateAnswer", body)
	return err
}

// MarkCompleted records the questionnaire as finished server-side.
func (s *QuestionnaireService) MarkCompleted(ctx context.Context, questionnaireID string) error {
	body := map[string]any{"questionnaireId": questionnaireID}
	_, err := s.client.Do(ctx, http.MethodPost, "/api/questionnaire/markQuestionnaireCompleted", body)
	return err
}
