package entry

// Relationship classifies how a new entry relates to its thread's running
// structural issue.
type Relationship string

const (
	RelationshipAdditive   Relationship = "ADDITIVE"
	RelationshipParallel   Relationship = "PARALLEL"
	RelationshipCorrection Relationship = "CORRECTION"
	RelationshipNew        Relationship = "NEW"
)

// StructuralAnalysis is the per-entry deep-analysis record embedded in
// Entry.StructuralAnalysis as JSON. Produced exactly once per entry.
type StructuralAnalysis struct {
	Relationship    Relationship `json:"relationship"`
	Reason          string       `json:"reason"`
	StructuralIssue string       `json:"updated_structural_issue"`
	ProbingQuestion string       `json:"probing_question"`
	ModelTier       string       `json:"model_tier,omitempty"`
}
