// Package config holds the snapshot/isolation options supplied by whoever
// drives a batch: a JSON blob or flags from the CLI.
package config

import (
	"encoding/json"
	"fmt"
)

// Config gates and tunes the snapshot subsystem.
type Config struct {
	// Enabled gates the whole subsystem; when false tasks run directly
	// against the live tree.
	Enabled bool `json:"enabled"`

	// BranchPrefix is used to build revision identifiers.
	BranchPrefix string `json:"branch_prefix"`

	// SymlinkPaths are the sub-paths redirected from each view back to the
	// originating tree, in order.
	SymlinkPaths []string `json:"symlink_paths"`

	// PushToRemote publishes each revision branch to the remote; failure to
	// publish is non-fatal.
	PushToRemote bool `json:"push_to_remote"`

	// WorktreeDir is the base directory for view checkouts. Empty means the
	// parent of the originating tree.
	WorktreeDir string `json:"worktree_dir"`
}

// DefaultConfig returns the defaults used when an option is absent.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      false,
		BranchPrefix: "slurm-job",
		SymlinkPaths: []string{"outputs", "multirun", ".submitit"},
		PushToRemote: true,
	}
}

var emptyJson = []byte("{}")

// Parse unmarshals text over the defaults. Empty text yields DefaultConfig.
func Parse(text []byte) (*Config, error) {
	if len(text) == 0 {
		text = emptyJson
	}
	c := DefaultConfig()
	if err := json.Unmarshal(text, c); err != nil {
		return nil, fmt.Errorf("config: couldn't parse: %v", err)
	}
	if c.BranchPrefix == "" {
		return nil, fmt.Errorf("config: branch_prefix may not be empty")
	}
	return c, nil
}
