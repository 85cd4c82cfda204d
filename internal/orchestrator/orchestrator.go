// Package orchestrator drives projects through the five-phase pipeline:
// phase execution, approval gates, and workspace materialization.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	orerrors "github.com/openroger/openroger/internal/errors"
	"github.com/openroger/openroger/internal/genai"
	"github.com/openroger/openroger/internal/metrics"
	"github.com/openroger/openroger/internal/parser"
	"github.com/openroger/openroger/internal/phase"
	"github.com/openroger/openroger/internal/runner"
	"github.com/openroger/openroger/internal/store"
	"github.com/openroger/openroger/internal/workspace"
)

// PhaseResult summarizes one phase execution.
type PhaseResult struct {
	Output       string
	FilesCreated []string
}

// CommandRunner executes whitelisted tooling commands inside a project
// workspace. Satisfied by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, projectID, command, cwdRelative string) (*runner.Result, error)
}

// Orchestrator coordinates store, workspace, generation, and command running.
// All phase work for a single project is serialized through a per-project
// lock; different projects run fully concurrently.
type Orchestrator struct {
	store   *store.Store
	ws      *workspace.Store
	runner  CommandRunner
	gen     genai.Generator
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an orchestrator.
func New(st *store.Store, ws *workspace.Store, run CommandRunner, gen genai.Generator, m *metrics.Metrics, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:   st,
		ws:      ws,
		runner:  run,
		gen:     gen,
		metrics: m,
		logger:  logger.With().Str("component", "orchestrator").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}
}

// projectLock returns the mutex serializing phase work for one project.
func (o *Orchestrator) projectLock(projectID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[projectID] = l
	}
	return l
}

// CreateProject creates the project record, materializes its workspace, seeds
// the default agents, and runs the architecture phase. A generation failure
// during the initial phase is logged but does not fail creation; the project
// stays in the architecture phase and approval can re-trigger it.
func (o *Orchestrator) CreateProject(ctx context.Context, input store.CreateProjectInput) (*store.Project, error) {
	p, err := o.store.CreateProject(input)
	if err != nil {
		return nil, err
	}

	lock := o.projectLock(p.ID)
	lock.Lock()
	defer lock.Unlock()

	workspacePath, err := o.ws.Create(p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	if err := o.store.UpdateWorkspace(p.ID, workspacePath, o.ws.Snapshot(p.ID)); err != nil {
		return nil, err
	}
	if err := o.store.SeedDefaultAgents(p.ID); err != nil {
		return nil, err
	}

	if res, err := o.runPhase(ctx, p.ID, phase.First, p.Prompt); err != nil {
		o.logger.Error().Err(err).Str("project_id", p.ID).
			Str("phase", string(phase.First)).Msg("initial phase failed")
	} else {
		o.refreshStructure(p.ID)
		o.appendPhaseTask(p.ID, phase.First, "Architecture document generated", res.FilesCreated)
	}

	return o.store.GetProject(p.ID)
}

// Decide records a human decision on a project's current phase and applies
// its effect. Approving runs the next phase first and only advances the
// pointer when generation succeeded, so a failed run leaves the project
// retryable in its prior phase.
func (o *Orchestrator) Decide(ctx context.Context, projectID, userID string, action phase.Action, comment string) (*store.Project, error) {
	if !phase.ValidAction(action) {
		return nil, fmt.Errorf("%w: invalid action %q", orerrors.ErrInvalidInput, action)
	}

	lock := o.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	p, err := o.store.GetProjectForUser(projectID, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, orerrors.ErrNotFound
	}

	if err := o.store.AddApproval(&store.Approval{
		ProjectID: p.ID,
		Phase:     p.CurrentPhase,
		UserID:    userID,
		Action:    action,
		Comment:   comment,
	}); err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.RecordApproval(string(action))
	}

	switch action {
	case phase.ActionApproved:
		o.applyApproval(ctx, p)
	case phase.ActionRejected:
		if err := o.store.UpdateStatus(p.ID, phase.StatusRejected); err != nil {
			return nil, err
		}
	case phase.ActionChangesRequested:
		// Recorded only. Re-running the current phase is a deliberate
		// non-feature; the human re-approves to move on.
	}

	return o.store.GetProject(p.ID)
}

// applyApproval runs the next phase and advances the pointer on success.
// Approving the terminal phase re-runs it without moving the pointer.
func (o *Orchestrator) applyApproval(ctx context.Context, p *store.Project) {
	next := p.CurrentPhase.Next()

	res, err := o.runPhase(ctx, p.ID, next, p.Prompt)
	if err != nil {
		o.logger.Error().Err(err).Str("project_id", p.ID).
			Str("phase", string(next)).Msg("phase generation failed")
		return
	}

	if next != p.CurrentPhase {
		if err := o.store.AdvancePhase(p.ID, p.CurrentPhase, next); err != nil {
			o.logger.Error().Err(err).Str("project_id", p.ID).Msg("phase advance failed")
			return
		}
	}

	o.refreshStructure(p.ID)
	o.appendPhaseTask(p.ID, next, fmt.Sprintf("Phase %s completed", next), res.FilesCreated)
}

// RunPhase materializes one phase's artifacts under the project lock. It
// never moves the phase pointer; re-running a phase overwrites its files.
func (o *Orchestrator) RunPhase(ctx context.Context, projectID string, ph phase.Phase, userPrompt string) (*PhaseResult, error) {
	lock := o.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()
	return o.runPhase(ctx, projectID, ph, userPrompt)
}

func (o *Orchestrator) runPhase(ctx context.Context, projectID string, ph phase.Phase, userPrompt string) (*PhaseResult, error) {
	start := time.Now()
	generated, err := o.gen.Generate(ctx, ph, userPrompt)
	if o.metrics != nil {
		o.metrics.ObserveGeneration(string(ph), time.Since(start).Seconds())
		if err != nil {
			o.metrics.RecordGeneration("error")
		} else {
			o.metrics.RecordGeneration("ok")
		}
	}
	if err != nil {
		o.recordPhase(ph, "failed")
		if errors.Is(err, orerrors.ErrGenerationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", orerrors.ErrGenerationFailed, err)
	}

	res := &PhaseResult{Output: generated}

	switch ph {
	case phase.Architecture:
		err = o.writeDoc(projectID, "backend/architecture.md", generated, res)

	case phase.DatabaseDesign:
		err = o.writeDoc(projectID, "db/schema.md", generated, res)

	case phase.BackendDevelopment:
		blocks := parser.ParseFileBlocks(generated)
		if len(blocks) == 0 {
			blocks = parser.SplitLegacy(generated)
		}
		if len(blocks) > 0 {
			err = o.writeBlocks(projectID, "backend", blocks, res)
			if err == nil {
				o.bestEffort(ctx, projectID, "npm install", "backend", "npm_install")
			}
		} else {
			err = o.writeDoc(projectID, "backend/backend.md", generated, res)
		}

	case phase.FrontendDevelopment:
		o.bestEffort(ctx, projectID, "npx create-next-app@latest . --yes", "frontend", "scaffold")
		blocks := parser.ParseFileBlocks(generated)
		if len(blocks) > 0 {
			err = o.writeBlocks(projectID, "frontend", blocks, res)
		} else {
			err = o.writeDoc(projectID, "frontend/frontend.md", generated, res)
		}

	case phase.ReviewRefinement:
		err = o.writeDoc(projectID, "review.md", generated, res)

	default:
		err = o.writeDoc(projectID, fmt.Sprintf("notes/%s.md", ph), generated, res)
	}

	if err != nil {
		o.recordPhase(ph, "failed")
		return nil, err
	}

	o.recordPhase(ph, "completed")
	o.logger.Info().Str("project_id", projectID).Str("phase", string(ph)).
		Int("files", len(res.FilesCreated)).Msg("phase completed")
	return res, nil
}

func (o *Orchestrator) writeDoc(projectID, path, content string, res *PhaseResult) error {
	if err := o.ws.WriteFile(projectID, path, content); err != nil {
		return err
	}
	res.FilesCreated = append(res.FilesCreated, path)
	return nil
}

func (o *Orchestrator) writeBlocks(projectID, folder string, blocks []parser.FileBlock, res *PhaseResult) error {
	for _, b := range blocks {
		target := parser.NormalizePrefix(b.Path, folder)
		if err := o.ws.WriteFile(projectID, target, b.Content); err != nil {
			return err
		}
		res.FilesCreated = append(res.FilesCreated, target)
	}
	return nil
}

// bestEffort runs a tooling command whose failure must not fail the phase.
func (o *Orchestrator) bestEffort(ctx context.Context, projectID, command, cwd, step string) {
	result, err := o.runner.Run(ctx, projectID, command, cwd)
	if err == nil && result.ExitCode == 0 {
		return
	}
	evt := o.logger.Warn().Str("project_id", projectID).Str("step", step)
	if err != nil {
		evt = evt.Err(err)
	} else {
		evt = evt.Int("exit_code", result.ExitCode)
	}
	evt.Msg("tooling step failed")
	if o.metrics != nil {
		o.metrics.RecordToolingWarning(step)
	}
}

// refreshStructure re-snapshots the workspace into the project record.
func (o *Orchestrator) refreshStructure(projectID string) {
	if err := o.store.UpdateFolderStructure(projectID, o.ws.Snapshot(projectID)); err != nil {
		o.logger.Error().Err(err).Str("project_id", projectID).Msg("structure refresh failed")
	}
}

// appendPhaseTask logs a completed phase against its owning default agent.
func (o *Orchestrator) appendPhaseTask(projectID string, ph phase.Phase, output string, files []string) {
	agent, err := o.store.GetAgentByRole(projectID, ph.Role())
	if err != nil || agent == nil {
		o.logger.Warn().Str("project_id", projectID).Str("role", ph.Role()).Msg("no agent for phase task")
		return
	}
	task := &store.Task{
		ProjectID:    projectID,
		AgentID:      agent.ID,
		Phase:        string(ph),
		Title:        fmt.Sprintf("Phase: %s", ph),
		Output:       output,
		FilesCreated: files,
		Status:       "completed",
	}
	if err := o.store.AppendTask(task); err != nil {
		o.logger.Error().Err(err).Str("project_id", projectID).Msg("task append failed")
	}
}

func (o *Orchestrator) recordPhase(ph phase.Phase, outcome string) {
	if o.metrics != nil {
		o.metrics.RecordPhase(string(ph), outcome)
	}
}
