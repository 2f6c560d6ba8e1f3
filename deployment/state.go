package deployment

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/givety/givety-indexer/schemas"
)

// ErrConflict is returned when recording an entry that disagrees with the one
// already in the state.
var ErrConflict = errors.New("deployment state conflict")

// Entry is the deployed address and creating transaction of one contract.
type Entry struct {
	Address string `json:"address"`
	TxHash  string `json:"txHash,omitempty"`
}

func (e Entry) equal(o Entry) bool {
	return normalizeHex(e.Address) == normalizeHex(o.Address) &&
		normalizeHex(e.TxHash) == normalizeHex(o.TxHash)
}

// State is the deployment-state file: contract name to entry. A multi-step
// deployment records each contract as it lands and skips the ones already
// present when resumed.
type State map[string]Entry

// LoadState reads a state file. A missing file is an empty state.
func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read deployment state: %w", err)
	}
	return ParseState(data)
}

// ParseState validates and decodes a state document.
func ParseState(data []byte) (State, error) {
	if err := schemas.ValidateDeploymentState(data); err != nil {
		return nil, err
	}
	state := State{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode deployment state: %w", err)
	}
	return state, nil
}

// Get returns the entry recorded for name.
func (s State) Get(name string) (Entry, bool) {
	e, ok := s[name]
	return e, ok
}

// Record adds an entry. Recording an identical entry again is a no-op and
// reports false; recording a different one for the same name is ErrConflict.
func (s State) Record(name string, e Entry) (bool, error) {
	if name == "" {
		return false, errors.New("contract name required")
	}
	if existing, ok := s[name]; ok {
		if existing.equal(e) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s recorded at %s, got %s", ErrConflict, name, existing.Address, e.Address)
	}
	s[name] = e
	return true, nil
}

// Save writes the state atomically: a temporary file in the same directory
// is renamed over path.
func (s State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode deployment state: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// ExportOptions carry the deployment fields the state file does not record.
type ExportOptions struct {
	ChainID        uint64
	Version        string
	DeploymentDate int64
	StartBlock     uint64
}

// Export builds a deployment document from the recorded addresses.
func (s State) Export(opts ExportOptions) (*Deployment, error) {
	d := &Deployment{
		ChainID:        opts.ChainID,
		Version:        opts.Version,
		DeploymentDate: opts.DeploymentDate,
		StartBlock:     opts.StartBlock,
		Addresses:      make(map[string]string, len(s)),
	}
	for name, e := range s {
		d.Addresses[name] = e.Address
	}
	if err := d.Check(); err != nil {
		return nil, err
	}
	return d, nil
}
