// Package phase defines the fixed five-phase pipeline a project moves through
// and the project/approval vocabulary around it.
package phase

// Phase is one of the five ordered pipeline stages.
type Phase string

const (
	Architecture        Phase = "architecture"
	DatabaseDesign      Phase = "database_design"
	BackendDevelopment  Phase = "backend_development"
	FrontendDevelopment Phase = "frontend_development"
	ReviewRefinement    Phase = "review_refinement"
)

// All lists the phases in pipeline order.
var All = []Phase{
	Architecture,
	DatabaseDesign,
	BackendDevelopment,
	FrontendDevelopment,
	ReviewRefinement,
}

// First is the initial phase of every project.
const First = Architecture

// Valid reports whether p is one of the five pipeline phases.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Index returns the position of p in the pipeline order, or -1.
func (p Phase) Index() int {
	for i, ph := range All {
		if ph == p {
			return i
		}
	}
	return -1
}

// Next returns the phase after p. The terminal phase returns itself;
// advancement never skips and never wraps.
func (p Phase) Next() Phase {
	i := p.Index()
	if i < 0 || i >= len(All)-1 {
		return p
	}
	return All[i+1]
}

// Terminal reports whether p is the last phase of the pipeline.
func (p Phase) Terminal() bool {
	return p == All[len(All)-1]
}

// Role returns the default agent role responsible for p.
func (p Phase) Role() string {
	switch p {
	case Architecture:
		return "architecture"
	case DatabaseDesign:
		return "database"
	case BackendDevelopment:
		return "backend"
	case FrontendDevelopment:
		return "frontend"
	case ReviewRefinement:
		return "orchestrator"
	}
	return "orchestrator"
}

// Project statuses.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusRejected  = "rejected"
)

// Action is a human decision at a phase gate.
type Action string

const (
	ActionApproved         Action = "approved"
	ActionRejected         Action = "rejected"
	ActionChangesRequested Action = "changes_requested"
)

// ValidAction reports whether a is a recognized approval action.
func ValidAction(a Action) bool {
	switch a {
	case ActionApproved, ActionRejected, ActionChangesRequested:
		return true
	}
	return false
}
