package model

import "time"

// IntakeSource identifies how an intake request entered the system.
type IntakeSource string

const (
	IntakeSourceText  IntakeSource = "text"
	IntakeSourceVoice IntakeSource = "voice"
	IntakeSourceForm  IntakeSource = "form"
)

// IntakeStatus tracks the lifecycle of a persisted intake.
type IntakeStatus string

const (
	IntakeStatusReceived   IntakeStatus = "received"
	IntakeStatusProcessing IntakeStatus = "processing"
	IntakeStatusComplete   IntakeStatus = "complete"
	IntakeStatusFailed     IntakeStatus = "failed"
)

// Intake is one processed patient request, persisted for history.
type Intake struct {
	ID        string        `json:"id"`
	Source    IntakeSource  `json:"source"`
	RawText   string        `json:"raw_text"`
	Status    IntakeStatus  `json:"status"`
	Result    *IntakeResult `json:"result,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Transcription describes how raw audio became text.
type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// Extraction holds the structured fields pulled from free text. Fields the
// extractor could not find are empty, never invalid.
type Extraction struct {
	InjuryDescription      string   `json:"injury_description"`
	ZipCode                string   `json:"zip_code"`
	Insurance              string   `json:"insurance"`
	RecommendedSpecialties []string `json:"recommended_specialties,omitempty"`
}

// IntakeResult is the full outcome of one intake: what was heard, what was
// extracted, which specialties were recommended, and the ranked providers.
type IntakeResult struct {
	Transcription          *Transcription `json:"transcription,omitempty"`
	Extracted              Extraction     `json:"extracted"`
	RecommendedSpecialties []string       `json:"recommended_specialties"`
	Matches                []MatchResult  `json:"matches"`
	TotalMatched           int            `json:"total_matched"`
}
