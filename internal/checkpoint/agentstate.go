// Package checkpoint persists the two durable documents needed beyond the
// event log: per-agent working state in a key-value store, and full-world
// checkpoint snapshots. Both adapt a db/bolt wrapper
// (PutJSON/GetJSON over go.etcd.io/bbolt) from a generic JSON KV helper
// into the kernel's own agent-state bucket and into a
// write-temp-then-rename snapshot writer.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const agentStateBucket = "agent_state"

// TurnRecord is one entry of an agent's bounded turn history.
type TurnRecord struct {
	At     time.Time      `json:"at"`
	Intent map[string]any `json:"intent,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

// AgentState is the per-agent working-memory document: current_state,
// working_memory, turn_history[≤N], action_counts.
type AgentState struct {
	CurrentState  string           `json:"current_state"`
	WorkingMemory map[string]any   `json:"working_memory"`
	TurnHistory   []TurnRecord     `json:"turn_history"`
	ActionCounts  map[string]int64 `json:"action_counts"`
}

// AgentStateStore is a bbolt-backed key-value store keyed by agent_id.
type AgentStateStore struct {
	db            *bolt.DB
	maxTurnHistory int
}

// OpenAgentStateStore opens (creating if needed) the bbolt file at path
// and ensures the agent_state bucket exists.
func OpenAgentStateStore(path string, maxTurnHistory int) (*AgentStateStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open agent state store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(agentStateBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create agent_state bucket: %w", err)
	}
	if maxTurnHistory <= 0 {
		maxTurnHistory = 50
	}
	return &AgentStateStore{db: db, maxTurnHistory: maxTurnHistory}, nil
}

// Get returns agentID's state, or a freshly-initialized zero state if none
// has been saved yet.
func (s *AgentStateStore) Get(agentID string) (AgentState, error) {
	var state AgentState
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(agentStateBucket))
		data := b.Get([]byte(agentID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return AgentState{}, err
	}
	if !found {
		return AgentState{WorkingMemory: map[string]any{}, ActionCounts: map[string]int64{}}, nil
	}
	if state.WorkingMemory == nil {
		state.WorkingMemory = map[string]any{}
	}
	if state.ActionCounts == nil {
		state.ActionCounts = map[string]int64{}
	}
	return state, nil
}

// Put saves agentID's state, truncating TurnHistory to the configured cap.
func (s *AgentStateStore) Put(agentID string, state AgentState) error {
	if len(state.TurnHistory) > s.maxTurnHistory {
		state.TurnHistory = state.TurnHistory[len(state.TurnHistory)-s.maxTurnHistory:]
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(agentStateBucket)).Put([]byte(agentID), data)
	})
}

// RecordTurn appends one turn to agentID's history and bumps its action
// count for intent, reloading-then-saving under a single bolt transaction
// boundary per call (an agent's own loop is the only writer of its state,
// so no extra locking is needed beyond bbolt's own transaction isolation).
func (s *AgentStateStore) RecordTurn(agentID string, intent, result map[string]any) error {
	state, err := s.Get(agentID)
	if err != nil {
		return err
	}
	state.TurnHistory = append(state.TurnHistory, TurnRecord{At: time.Now(), Intent: intent, Result: result})
	if state.ActionCounts == nil {
		state.ActionCounts = map[string]int64{}
	}
	if kind, ok := intent["kind"].(string); ok {
		state.ActionCounts[kind]++
	}
	return s.Put(agentID, state)
}

// All returns every agent_id with a saved state, for checkpoint snapshots.
func (s *AgentStateStore) All() (map[string]AgentState, error) {
	out := map[string]AgentState{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(agentStateBucket))
		return b.ForEach(func(k, v []byte) error {
			var state AgentState
			if err := json.Unmarshal(v, &state); err != nil {
				return err
			}
			out[string(k)] = state
			return nil
		})
	})
	return out, err
}

// Close closes the underlying bbolt database.
func (s *AgentStateStore) Close() error { return s.db.Close() }
