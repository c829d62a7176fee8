// Package session resolves authenticated users to roles and live engines.
//
// The authentication provider is external; handlers receive a user id and
// this package supplies the role (defaulting to seller) and a per-user,
// per-flow engine instance.
package session

import (
	"log/slog"
	"sync"

	"github.com/entrylane/onboard/internal/flow"
	"github.com/entrylane/onboard/internal/models"
	"github.com/entrylane/onboard/internal/store"
)

// Manager owns live engines keyed by (userID, flow). Engines are created on
// demand and discarded on flow switch or session end.
type Manager struct {
	store store.Store
	defs  *flow.DefinitionStore
	orch  *flow.StageOrchestrator

	mu      sync.Mutex
	engines map[string]*flow.Engine
}

// NewManager creates a session manager.
func NewManager(st store.Store, defs *flow.DefinitionStore, orch *flow.StageOrchestrator) *Manager {
	slog.Debug("Creating session Manager")
	return &Manager{
		store:   st,
		defs:    defs,
		orch:    orch,
		engines: make(map[string]*flow.Engine),
	}
}

func engineKey(userID, flowName string) string {
	return userID + "\x00" + flowName
}

// Resolve returns the user's profile, applying the default role when the
// user has no role record yet. The profile is not persisted here.
func (m *Manager) Resolve(userID string) (models.UserProfile, error) {
	profile, err := m.store.GetProfile(userID)
	if err != nil {
		slog.Error("Session Resolve profile load failed", "error", err, "userID", userID)
		return models.UserProfile{}, err
	}
	if profile == nil {
		slog.Debug("Session Resolve no profile, using default role", "userID", userID, "role", models.DefaultRole)
		return models.UserProfile{UserID: userID, Role: models.DefaultRole}, nil
	}
	if profile.Role == "" {
		profile.Role = models.DefaultRole
	}
	return *profile, nil
}

// Open creates (or replaces) the engine for (userID, flow). Reopening with a
// different editing mode rebuilds the engine from persisted state.
func (m *Manager) Open(userID, flowName string, editing bool) (*flow.Engine, error) {
	engine, err := flow.NewEngine(m.defs, m.store, m.orch, userID, flowName, editing)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.engines[engineKey(userID, flowName)] = engine
	m.mu.Unlock()
	slog.Info("Session opened", "userID", userID, "flow", flowName, "editing", editing)
	return engine, nil
}

// Engine returns the live engine for (userID, flow), or nil when no session
// is open.
func (m *Manager) Engine(userID, flowName string) *flow.Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engines[engineKey(userID, flowName)]
}

// Close discards the engine for (userID, flow) after flushing pending
// answer writes.
func (m *Manager) Close(userID, flowName string) {
	m.mu.Lock()
	engine := m.engines[engineKey(userID, flowName)]
	delete(m.engines, engineKey(userID, flowName))
	m.mu.Unlock()
	if engine != nil {
		engine.Flush()
		slog.Info("Session closed", "userID", userID, "flow", flowName)
	}
}
