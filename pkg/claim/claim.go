// Package claim defines the durable data model for a claim conversation:
// the claim record itself, its conversation, attachments, pending
// agent tool-call payloads, decisions, and the follow-up queue.
//
// Types here are plain data — persistence lives in pkg/store, mutation
// policy lives in pkg/orchestrator. A Claim is safe to read concurrently
// only through the store's per-claim mutex; the struct itself carries no
// lock.
package claim

import "time"

// Stage is a node in the claim's finite state machine (spec §4.10).
type Stage string

const (
	StageNew                Stage = "NEW"
	StageQuestioned          Stage = "QUESTIONED"
	StageTriaged             Stage = "TRIAGED"
	StageAgentsRunning       Stage = "AGENTS_RUNNING"
	StageReview              Stage = "REVIEW"
	StageFollowupRequested   Stage = "FOLLOWUP_REQUESTED"
	StageAgentsComplete      Stage = "AGENTS_COMPLETE"
	StageComplete            Stage = "COMPLETE"
)

// transitions enumerates the allowed moves for the state machine (spec §4.10 table).
var transitions = map[Stage][]Stage{
	StageNew:              {StageQuestioned},
	StageQuestioned:       {StageTriaged, StageAgentsRunning},
	StageTriaged:          {StageAgentsRunning},
	StageAgentsRunning:    {StageReview, StageFollowupRequested, StageAgentsComplete},
	StageReview:           {StageAgentsRunning},
	StageFollowupRequested: {StageAgentsRunning},
	StageAgentsComplete:   {StageComplete},
	StageComplete:         {StageTriaged},
}

// CanTransition reports whether moving from `from` to `to` is allowed.
func CanTransition(from, to Stage) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IncidentType is one of the 15 fixed categories a claim can be triaged into (spec §4.6).
type IncidentType string

const (
	IncidentAccidentalAndGlassDamage IncidentType = "accidental_and_glass_damage"
	IncidentFire                     IncidentType = "fire"
	IncidentTheft                    IncidentType = "theft"
	IncidentAncillaryProperty        IncidentType = "ancillary_property"
	IncidentThirdPartyInjury         IncidentType = "third_party_injury"
	IncidentThirdPartyProperty       IncidentType = "third_party_property"
	IncidentSpecialLiability         IncidentType = "special_liability"
	IncidentLegalAndStatutory        IncidentType = "legal_and_statutory"
	IncidentPersonalInjury           IncidentType = "personal_injury"
	IncidentPersonalConvenience      IncidentType = "personal_convenience"
	IncidentPersonalProperty         IncidentType = "personal_property"
	IncidentTerritorialUsage         IncidentType = "territorial_usage"
	IncidentGeneralExceptions        IncidentType = "general_exceptions"
	IncidentVehicleSecurity          IncidentType = "vehicle_security"
	IncidentAdministrative           IncidentType = "administrative"
)

// AllIncidentTypes is the fixed classification set from spec §4.6.
var AllIncidentTypes = []IncidentType{
	IncidentAccidentalAndGlassDamage, IncidentFire, IncidentTheft, IncidentAncillaryProperty,
	IncidentThirdPartyInjury, IncidentThirdPartyProperty, IncidentSpecialLiability,
	IncidentLegalAndStatutory, IncidentPersonalInjury, IncidentPersonalConvenience,
	IncidentPersonalProperty, IncidentTerritorialUsage, IncidentGeneralExceptions,
	IncidentVehicleSecurity, IncidentAdministrative,
}

// Claim is the durable per-claim record (spec §3 "Claim").
type Claim struct {
	ID              string            `json:"id"`
	SenderEmail     string            `json:"sender_email"`
	Subject         string            `json:"subject"`           // normalized initial subject
	SubjectFP       string            `json:"subject_fp"`        // immutable once set
	Stage           Stage             `json:"stage"`
	IncidentTypes   []IncidentType    `json:"incident_types,omitempty"`
	IncidentDescription string        `json:"incident_description,omitempty"`
	AgentThreads    map[string]string `json:"agent_threads,omitempty"`    // agent name -> thread handle
	CompletedAgents map[string]bool   `json:"completed_agents,omitempty"` // agent name -> done
	ClarifyingSent  bool              `json:"clarifying_sent"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// New creates a fresh claim record in stage NEW.
func New(id, senderEmail string, now time.Time) *Claim {
	return &Claim{
		ID:              id,
		SenderEmail:     senderEmail,
		Stage:           StageNew,
		AgentThreads:    map[string]string{},
		CompletedAgents: map[string]bool{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// HasIncidentType reports whether the claim was triaged into the given type.
func (c *Claim) HasIncidentType(t IncidentType) bool {
	for _, it := range c.IncidentTypes {
		if it == t {
			return true
		}
	}
	return false
}

// IsAgentComplete reports whether the named agent has finished (decision recorded).
func (c *Claim) IsAgentComplete(agent string) bool {
	return c.CompletedAgents[agent]
}

// Role is the sender of a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationEntry is one append-only entry in a claim's conversation (spec §3 "Conversation").
type ConversationEntry struct {
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Attachments []string  `json:"attachments,omitempty"`
}

// Conversation is the full ordered history plus attachment descriptions,
// mirroring the teacher's context.json layout (spec §6 persisted state layout).
type Conversation struct {
	Entries                 []ConversationEntry `json:"entries"`
	AttachmentDescriptions map[string]string    `json:"attachment_descriptions,omitempty"`
}

// PendingPayload is an unconsumed tool-call payload emitted by an agent (spec §3).
type PendingPayload struct {
	Agent     string          `json:"agent"`
	Payload   map[string]any  `json:"payload"`
	Processed bool            `json:"processed"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decision is the evaluator's verdict for one agent on a claim (spec §3 "Decision").
// At most one exists per agent at any time.
type Decision struct {
	Agent     string    `json:"agent"`
	Decision  any       `json:"decision"`
	Timestamp time.Time `json:"timestamp"`
}

// FollowUp is one open question raised by an agent, pending deduplication (spec §3 "Follow-up queue").
type FollowUp struct {
	Agent     string    `json:"agent"`
	Question  string    `json:"question_text"`
	Timestamp time.Time `json:"timestamp"`
}

// Attachment metadata. The binary itself lives under the claim's attachments/ directory.
type Attachment struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}
