package models

// Client-side presentation shapes produced by the questionnaire transform.
// Immutable once produced; one Questionnaire lives for one traversal.

// InputKind tags how a question is answered.
type InputKind string

const (
	InputKindText   InputKind = "text"
	InputKindChoice InputKind = "choice"
	// InputKindScale exists in the presentation vocabulary for bounded
	// 1..N prompts. No backend kind maps to it today, so the transform
	// never produces it.
	InputKindScale InputKind = "scale"
)

// Option pairs the label shown to the user with the value sent to the server.
type Option struct {
	Label string
	Value int
}

// Question is the flat, presentation-ready question shape.
type Question struct {
	ID          string
	Text        string
	Kind        InputKind
	Options     []Option // choice kind only; may be empty
	Placeholder string   // text kind only
	// Bounds for a future scale kind; zero-valued until the backend
	// grows a scale question type.
	Min, Max, Step int
}

// Questionnaire is the client shape of one fetched questionnaire.
type Questionnaire struct {
	ID          string
	Title       string
	Description string
	Week        int
	Questions   []Question
}

// OptionValue returns the submittable value for a display label and whether
// a matching option exists.
func (q Question) OptionValue(label string) (int, bool) {
	for _, opt := range q.Options {
		if opt.Label == label {
			return opt.Value, true
		}
	}
	return 0, false
}

// Labels returns the display labels in source order.
func (q Question) Labels() []string {
	out := make([]string, len(q.Options))
	for i, opt := range q.Options {
		out[i] = opt.Label
	}
	return out
}
