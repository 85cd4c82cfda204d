// Package preview manages dev-server processes serving generated frontends.
package preview

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	orerrors "github.com/openroger/openroger/internal/errors"
	"github.com/openroger/openroger/internal/metrics"
	"github.com/openroger/openroger/internal/workspace"
)

// Process is a handle to a running preview that can be killed and waited on.
type Process interface {
	Kill() error
	Wait() error
}

// Spawner starts a preview process in dir listening on port.
type Spawner interface {
	Spawn(dir string, port int) (Process, error)
}

// execProcess wraps an exec.Cmd as a Process.
type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *execProcess) Wait() error { return p.cmd.Wait() }

// npmSpawner runs `npm run dev -- -p <port>` with stdio discarded.
type npmSpawner struct{}

func (npmSpawner) Spawn(dir string, port int) (Process, error) {
	cmd := exec.Command("npm", "run", "dev", "--", "-p", fmt.Sprintf("%d", port))
	cmd.Dir = dir
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Env = append(os.Environ(), fmt.Sprintf("PORT=%d", port))
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type entry struct {
	proc Process
	port int
}

// Manager tracks at most one preview process per project and owns the
// port range starting at basePort.
type Manager struct {
	mu        sync.Mutex
	running   map[string]*entry
	usedPorts map[int]bool

	ws       *workspace.Store
	spawner  Spawner
	basePort int
	grace    time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewManager creates a preview manager. A nil spawner uses npm.
func NewManager(ws *workspace.Store, spawner Spawner, basePort int, grace time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Manager {
	if spawner == nil {
		spawner = npmSpawner{}
	}
	return &Manager{
		running:   make(map[string]*entry),
		usedPorts: make(map[int]bool),
		ws:        ws,
		spawner:   spawner,
		basePort:  basePort,
		grace:     grace,
		metrics:   m,
		logger:    logger.With().Str("component", "preview").Logger(),
	}
}

// allocatePort scans up from basePort. Caller holds mu.
func (m *Manager) allocatePort() int {
	port := m.basePort
	for m.usedPorts[port] {
		port++
	}
	m.usedPorts[port] = true
	return port
}

// Start launches a preview for the project's frontend and returns its URL.
// Starting an already-running preview returns the existing URL.
func (m *Manager) Start(projectID string) (string, error) {
	m.mu.Lock()
	if e, ok := m.running[projectID]; ok {
		m.mu.Unlock()
		return urlFor(e.port), nil
	}

	if _, ok := m.ws.ReadFile(projectID, "frontend/package.json"); !ok {
		m.mu.Unlock()
		return "", orerrors.ErrFrontendNotReady
	}

	dir, err := m.ws.Resolve(projectID, "frontend")
	if err != nil {
		m.mu.Unlock()
		return "", err
	}

	port := m.allocatePort()
	proc, err := m.spawner.Spawn(dir, port)
	if err != nil {
		delete(m.usedPorts, port)
		m.mu.Unlock()
		return "", fmt.Errorf("failed to start preview: %w", err)
	}
	m.running[projectID] = &entry{proc: proc, port: port}
	live := len(m.running)
	m.mu.Unlock()

	m.logger.Info().Str("project_id", projectID).Int("port", port).Msg("preview started")
	if m.metrics != nil {
		m.metrics.RecordPreview("start")
		m.metrics.SetPreviewsLive(float64(live))
	}

	go m.reap(projectID, proc, port)

	// Give the dev server a moment to bind before handing out the URL.
	time.Sleep(m.grace)
	return urlFor(port), nil
}

// reap releases the port and tracking entry once the process exits.
func (m *Manager) reap(projectID string, proc Process, port int) {
	err := proc.Wait()

	m.mu.Lock()
	if e, ok := m.running[projectID]; ok && e.proc == proc {
		delete(m.running, projectID)
		delete(m.usedPorts, port)
	}
	live := len(m.running)
	m.mu.Unlock()

	m.logger.Info().Str("project_id", projectID).Int("port", port).Err(err).Msg("preview exited")
	if m.metrics != nil {
		m.metrics.SetPreviewsLive(float64(live))
	}
}

// Stop kills a project's preview. Stopping a project with no preview is a no-op.
func (m *Manager) Stop(projectID string) {
	m.mu.Lock()
	e, ok := m.running[projectID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := e.proc.Kill(); err != nil {
		m.logger.Warn().Str("project_id", projectID).Err(err).Msg("failed to kill preview")
	}
	if m.metrics != nil {
		m.metrics.RecordPreview("stop")
	}
}

// URL returns the preview URL for a running project, or ("", false).
func (m *Manager) URL(projectID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.running[projectID]
	if !ok {
		return "", false
	}
	return urlFor(e.port), true
}

// StopAll kills every running preview. Used during shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.running))
	for _, e := range m.running {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		_ = e.proc.Kill()
	}
}

func urlFor(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}
