package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/emergentlabs/agentsim/internal/world"
)

// Snapshot is the full checkpoint document "): version, balances, artifacts (full serialization),
// agent_states, cumulative_api_cost, timestamp, reason.
type Snapshot struct {
	Version          int                      `json:"version"`
	Timestamp        time.Time                `json:"timestamp"`
	Reason           string                   `json:"reason"`
	Balances         map[string]world.Balances `json:"balances"`
	Artifacts        []*world.Artifact        `json:"artifacts"`
	AgentStates      map[string]AgentState    `json:"agent_states"`
	CumulativeAPICost float64                 `json:"cumulative_api_cost"`
}

// Store writes and lists checkpoint snapshot documents under Dir, using
// write-temp-then-rename atomicity and a
// version-number-prefixed filename so snapshots sort in creation order.
type Store struct {
	Dir string
}

// NewStore ensures dir exists and returns a Store rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &Store{Dir: dir}, nil
}

// Write serializes snap to <version>-<unixnano>.json, writing to a
// temporary file in the same directory first and renaming it into place
// so a reader never observes a partially-written checkpoint.
func (s *Store) Write(snap Snapshot) (string, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint: %w", err)
	}

	name := fmt.Sprintf("%06d-%d.json", snap.Version, snap.Timestamp.UnixNano())
	final := filepath.Join(s.Dir, name)
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename checkpoint into place: %w", err)
	}
	return final, nil
}

// Latest returns the path of the highest-versioned checkpoint file in Dir,
// or "" if none exist.
func (s *Store) Latest() (string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(s.Dir, names[len(names)-1]), nil
}

// Load reads and parses a checkpoint document from path.
func (s *Store) Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse checkpoint: %w", err)
	}
	return snap, nil
}

// Build assembles a Snapshot from the live world containers. version
// should be the caller's running checkpoint counter (incremented per
// call); cumulativeAPICost is tracked by the caller (e.g. summed from
// llmgateway call outcomes) since the ledger only holds current balances,
// not lifetime spend.
func Build(version int, reason string, ledger *world.Ledger, store *world.ArtifactStore, agentStates *AgentStateStore, cumulativeAPICost float64) (Snapshot, error) {
	states, err := agentStates.All()
	if err != nil {
		return Snapshot{}, fmt.Errorf("collect agent states: %w", err)
	}
	return Snapshot{
		Version:           version,
		Timestamp:         time.Now(),
		Reason:            reason,
		Balances:          ledger.AllBalances(),
		Artifacts:         store.List("", true),
		AgentStates:       states,
		CumulativeAPICost: cumulativeAPICost,
	}, nil
}

// Restore replays a Snapshot's balances back into ledger and agent states
// back into agentStates. Artifact restoration is intentionally left to the
// caller: recreating *world.Artifact values requires re-registering each id
// with the IDRegistry the same way genesis loading does, which cmd/kernel
// already knows how to do via the ordinary dispatch write path.
func Restore(snap Snapshot, ledger *world.Ledger, agentStates *AgentStateStore) error {
	ledger.Restore(snap.Balances)
	for agentID, state := range snap.AgentStates {
		if err := agentStates.Put(agentID, state); err != nil {
			return fmt.Errorf("restore agent state %s: %w", agentID, err)
		}
	}
	return nil
}
