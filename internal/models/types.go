package models

// Backend wire shapes for the questionnaire API. The server owns these; the
// client decodes them at the request-client boundary and never mutates them.

// LocalizedText is a bundle of already-localized strings keyed by locale.
type LocalizedText map[string]string

// Resolve returns the text for locale, falling back to English, then to any
// entry present.
func (t LocalizedText) Resolve(locale string) string {
	if v, ok := t[locale]; ok && v != "" {
		return v
	}
	if v, ok := t["en"]; ok && v != "" {
		return v
	}
	for _, v := range t {
		if v != "" {
			return v
		}
	}
	return ""
}

// RawOption is one selectable (label, value) pair inside an OptionSet.
type RawOption struct {
	Label LocalizedText `json:"label"`
	Value int           `json:"value"`
}

// OptionSet is a named, versioned collection of options shared across
// questions. A choice question references exactly one.
type OptionSet struct {
	ID       string        `json:"_id"`
	Name     string        `json:"name"`
	Options  []RawOption   `json:"options"`
	IsActive bool          `json:"isActive"`
	Desc     LocalizedText `json:"description,omitempty"`
}

// Question kind tags as the backend sends them.
const (
	RawKindSingleChoice   = "single_choice"
	RawKindMultipleChoice = "multiple_choice"
	RawKindText           = "text"
)

// RawQuestion is a backend question-bank record. OptionSet is populated
// (embedded) for choice kinds; it may be nil or inactive, in which case the
// question transforms with no renderable options.
type RawQuestion struct {
	ID         string        `json:"_id"`
	Text       LocalizedText `json:"text"`
	Kind       string        `json:"type"`
	OptionSet  *OptionSet    `json:"optionSetId,omitempty"`
	IsRequired bool          `json:"isRequired"`
	IsActive   bool          `json:"isActive"`
	Version    int           `json:"version,omitempty"`
}

// RawQuestionnaire is the server's questionnaire shape. Question order is
// significant and preserved through the transform.
type RawQuestionnaire struct {
	ID          string        `json:"_id"`
	Title       LocalizedText `json:"title"`
	Description LocalizedText `json:"description"`
	Week        int           `json:"week"`
	Questions   []RawQuestion `json:"questions"`
	IsActive    bool          `json:"isActive"`
}

// QuestionnaireEnvelope wraps the fetch response.
type QuestionnaireEnvelope struct {
	Questionnaire RawQuestionnaire `json:"questionnaire"`
	Week          int              `json:"week"`
}

// AuthUser is the user payload returned by sign-in/sign-up.
type AuthUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthResult is the full auth payload, token included.
type AuthResult struct {
	Token string   `json:"token"`
	User  AuthUser `json:"user"`
}
