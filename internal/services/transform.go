package services

import "github.com/calmbridge/checkin/internal/models"

// DefaultPlaceholder is shown for free-text questions that supply none.
const DefaultPlaceholder = "Enter your answer..."

// TransformQuestionnaire flattens a backend questionnaire envelope into the
// presentation shape. Pure: no I/O, and the same input always yields the
// same output.
func TransformQuestionnaire(env models.QuestionnaireEnvelope, locale string) models.Questionnaire {
	raw := env.Questionnaire
	week := env.Week
	if week == 0 {
		week = raw.Week
	}

	questions := make([]models.Question, 0, len(raw.Questions))
	for _, rq := range raw.Questions {
		questions = append(questions, transformQuestion(rq, locale))
	}

	return models.Questionnaire{
		ID:          raw.ID,
		Title:       raw.Title.Resolve(locale),
		Description: raw.Description.Resolve(locale),
		Week:        week,
		Questions:   questions,
	}
}

func transformQuestion(rq models.RawQuestion, locale string) models.Question {
	q := models.Question{
		ID:   rq.ID,
		Text: rq.Text.Resolve(locale),
	}
	switch rq.Kind {
	case models.RawKindSingleChoice, models.RawKindMultipleChoice:
		q.Kind = models.InputKindChoice
		// A missing or empty OptionSet still transforms; zero-option
		// choice questions are a display concern, not an error.
		if rq.OptionSet != nil {
			q.Options = make([]models.Option, 0, len(rq.OptionSet.Options))
			for _, opt := range rq.OptionSet.Options {
				q.Options = append(q.Options, models.Option{
					Label: opt.Label.Resolve(locale),
					Value: opt.Value,
				})
			}
		}
	default:
		q.Kind = models.InputKindText
		q.Placeholder = DefaultPlaceholder
	}
	return q
}
