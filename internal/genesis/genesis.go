// Package genesis loads the boot-time manifest of non-privileged "genesis"
// artifacts (access handlers, ledger/store API shims, mint, escrow, debt
// contract, handbook, sample agent). Every entry is written through the
// ordinary dispatch write intent so a genesis artifact is indistinguishable
// from one a user agent creates later. The loader follows a
// dependency-ordered, fail-fast construction style at process start.
package genesis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/emergentlabs/agentsim/internal/config"
	"github.com/emergentlabs/agentsim/internal/dispatch"
	"github.com/emergentlabs/agentsim/internal/logging"
	"github.com/emergentlabs/agentsim/internal/world"
)

const (
	genesisPrincipal = "genesis"
	genesisDiskQuota  = 64 * 1024 * 1024 // enough disk quota to write every manifest file
)

// Entry is one manifest line item.
type Entry struct {
	ID               string              `yaml:"id"`
	Kind             world.Kind          `yaml:"kind"`
	ContentFile      string              `yaml:"content_file,omitempty"`
	CodeFile         string              `yaml:"code_file,omitempty"`
	Interface        world.Interface     `yaml:"interface"`
	Capabilities     []world.Capability  `yaml:"capabilities,omitempty"`
	Metadata         map[string]any      `yaml:"metadata,omitempty"`
	AccessContractID string              `yaml:"access_contract_id,omitempty"`
	HasStanding      bool                `yaml:"has_standing,omitempty"`
	HasLoop          bool                `yaml:"has_loop,omitempty"`
}

// Manifest is the full boot-time artifact list, applied in file order so
// later entries (e.g. the sample agent) can reference earlier ones (e.g.
// the mint) by id.
type Manifest struct {
	Entries []Entry `yaml:"entries"`
}

// LoadManifest parses the YAML manifest at path.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read genesis manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse genesis manifest: %w", err)
	}
	return m, nil
}

// Loader applies a Manifest against a live kernel.
type Loader struct {
	Dispatcher *dispatch.Dispatcher
	Ledger     *world.Ledger
	BaseDir    string // content_file/code_file paths resolve relative to this
	AlphaPrime config.AlphaPrimeConfig
	log        *logging.Logger
}

// NewLoader builds a Loader. baseDir is typically the manifest file's own
// directory, so content/code files live alongside it.
func NewLoader(d *dispatch.Dispatcher, ledger *world.Ledger, baseDir string, alphaPrime config.AlphaPrimeConfig, log *logging.Logger) *Loader {
	return &Loader{Dispatcher: d, Ledger: ledger, BaseDir: baseDir, AlphaPrime: alphaPrime, log: log}
}

// Apply writes every manifest entry through dispatch.KindWrite, in order,
// and, when alpha_prime is enabled, grants starting balances to any entry
// declaring has_standing — genesis's equivalent of an agent's opening
// account, since nothing else in the kernel spawns a ledger entry for a
// principal that has never transacted.
func (l *Loader) Apply(ctx context.Context, m Manifest) error {
	// The "genesis" principal writing these entries needs enough disk
	// quota to cover every content/code file in the manifest; it has no
	// other source of funds since it is the very first principal to act.
	l.Ledger.Spawn(genesisPrincipal, world.Balances{DiskQuota: genesisDiskQuota})

	for _, e := range m.Entries {
		if err := l.applyEntry(ctx, e); err != nil {
			return fmt.Errorf("genesis entry %q: %w", e.ID, err)
		}
	}
	return nil
}

func (l *Loader) applyEntry(ctx context.Context, e Entry) error {
	var content []byte
	if e.ContentFile != "" {
		data, err := os.ReadFile(filepath.Join(l.BaseDir, e.ContentFile))
		if err != nil {
			return fmt.Errorf("read content_file: %w", err)
		}
		content = data
	}

	var code *string
	if e.CodeFile != "" {
		data, err := os.ReadFile(filepath.Join(l.BaseDir, e.CodeFile))
		if err != nil {
			return fmt.Errorf("read code_file: %w", err)
		}
		s := string(data)
		code = &s
	}

	iface := e.Interface
	intent := dispatch.Intent{
		Kind:             dispatch.KindWrite,
		PrincipalID:      genesisPrincipal,
		ArtifactID:       e.ID,
		ArtifactKind:     e.Kind,
		Content:          content,
		Interface:        &iface,
		Code:             code,
		Metadata:         e.Metadata,
		AccessContractID: e.AccessContractID,
		Capabilities:     e.Capabilities,
		HasStanding:      e.HasStanding,
		HasLoop:          e.HasLoop,
	}

	result := l.Dispatcher.Dispatch(ctx, intent)
	if !result.Success {
		return fmt.Errorf("write failed: %s", result.Message)
	}

	if e.HasStanding && l.AlphaPrime.Enabled {
		l.Ledger.Spawn(e.ID, world.Balances{
			Scrip:           l.AlphaPrime.StartingScrip,
			LLMDollarBudget: l.AlphaPrime.StartingLLMBudget,
		})
	}

	if l.log != nil {
		l.log.WithContext(ctx).WithField("artifact_id", e.ID).WithField("kind", string(e.Kind)).Info("genesis artifact loaded")
	}
	return nil
}
