package session

import (
	"fmt"
	"strings"
)

// Conversation is the input of one conflict-resolution session.
type Conversation struct {
	Transcript         string   `json:"transcript" validate:"required"`
	ConflictTypes      []string `json:"conflict_types" validate:"dive,required"`
	PartnerABackground string   `json:"partner_a_background"`
	PartnerBBackground string   `json:"partner_b_background"`
}

// Vars returns the run context the crew templates reference.
func (c Conversation) Vars() map[string]string {
	return map[string]string{
		"transcript":           c.Transcript,
		"conflict_types":       strings.Join(c.ConflictTypes, ", "),
		"partner_a_background": c.PartnerABackground,
		"partner_b_background": c.PartnerBBackground,
	}
}

// EmotionAnalysis is the output of the emotion recognition task.
// Intensities range from 0.0 to 1.0.
type EmotionAnalysis struct {
	PartnerAEmotions  map[string]float64 `json:"partner_a_emotions"`
	PartnerBEmotions  map[string]float64 `json:"partner_b_emotions"`
	EmotionalTriggers []string           `json:"emotional_triggers"`
	Recommendations   string             `json:"recommendations"`
}

func (e *EmotionAnalysis) normalize() {
	if e.PartnerAEmotions == nil {
		e.PartnerAEmotions = map[string]float64{}
	}
	if e.PartnerBEmotions == nil {
		e.PartnerBEmotions = map[string]float64{}
	}
	if e.EmotionalTriggers == nil {
		e.EmotionalTriggers = []string{}
	}
}

// PartnerResponse is one partner's simulated perspective.
type PartnerResponse struct {
	EmotionalState    string `json:"emotional_state"`
	Perspective       string `json:"perspective"`
	PotentialDialogue string `json:"potential_dialogue"`
}

// CounselorResponse is the counselor's analysis and mediation.
type CounselorResponse struct {
	Analysis          string `json:"analysis"`
	MediationDialogue string `json:"mediation_dialogue"`
	Guidance          string `json:"guidance"`
}

// EncouragerResponse reinforces constructive behavior.
type EncouragerResponse struct {
	PositiveObservations  string `json:"positive_observations"`
	ReinforcementDialogue string `json:"reinforcement_dialogue"`
	MotivationStrategies  string `json:"motivation_strategies"`
}

// Interaction is the decoded result of a session. A section whose task did
// not succeed, or whose output held nothing decodable, is left empty.
type Interaction struct {
	RunID              string             `json:"run_id,omitempty"`
	EmotionAnalysis    EmotionAnalysis    `json:"emotion_analysis"`
	PartnerAResponse   PartnerResponse    `json:"partner_a_response"`
	PartnerBResponse   PartnerResponse    `json:"partner_b_response"`
	CounselorResponse  CounselorResponse  `json:"counselor_response"`
	EncouragerResponse EncouragerResponse `json:"encourager_response"`
	IntegratedDialogue string             `json:"integrated_dialogue"`
}

// LegacyInteraction is the flattened four-field form older clients expect.
type LegacyInteraction struct {
	RunID                string `json:"run_id,omitempty"`
	ConflictAnalysis     string `json:"conflict_analysis"`
	DialogueScript       string `json:"dialogue_script"`
	EmpathyGuidance      string `json:"empathy_guidance"`
	ResolutionStrategies string `json:"resolution_strategies"`
}

// Legacy flattens the interaction into the legacy response.
func (i *Interaction) Legacy() LegacyInteraction {
	return LegacyInteraction{
		RunID: i.RunID,
		ConflictAnalysis: fmt.Sprintf("Counselor Analysis: %s\n\nPartner A Perspective: %s\n\nPartner B Perspective: %s",
			i.CounselorResponse.Analysis, i.PartnerAResponse.Perspective, i.PartnerBResponse.Perspective),
		DialogueScript:  i.IntegratedDialogue,
		EmpathyGuidance: i.CounselorResponse.Guidance,
		ResolutionStrategies: fmt.Sprintf("Motivation Strategies: %s\n\nCounselor Guidance: %s",
			i.EncouragerResponse.MotivationStrategies, i.CounselorResponse.Guidance),
	}
}
