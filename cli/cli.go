// Package cli implements the snapbatch command line.
//
// main.go defines an Injector that knows how to load configuration and
// stats, and calls MakeCLI with it. MakeCLI builds the cobra command tree;
// each subcommand registers its own flags and receives the injected
// dependencies through a RunE wrapper, so main stays free to supply its own
// config source.
package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sberrors "github.com/snapbatch/snapbatch/common/errors"
	"github.com/snapbatch/snapbatch/common/stats"
	"github.com/snapbatch/snapbatch/config"
	"github.com/snapbatch/snapbatch/os/temp"
	"github.com/snapbatch/snapbatch/runner"
	"github.com/snapbatch/snapbatch/snapshot/git/repo"
	"github.com/snapbatch/snapbatch/snapshot/git/snapshotter"
	"github.com/snapbatch/snapbatch/snapshot/git/worktree"
)

// Injector supplies the dependencies main wants to control.
type Injector interface {
	RegisterFlags(rootCmd *cobra.Command)
	Inject() (*config.Config, stats.StatsReceiver, error)
}

// MakeCLI creates the cobra command tree.
func MakeCLI(injector Injector) *cobra.Command {
	rootCobraCmd := &cobra.Command{
		Use:   "snapbatch",
		Short: "immutable code snapshots and isolated per-job views for batched jobs",
	}

	injector.RegisterFlags(rootCobraCmd)

	add := func(subCmd command, parentCobraCmd *cobra.Command) {
		cmd := subCmd.register()
		cmd.RunE = func(innerCmd *cobra.Command, args []string) error {
			cfg, stat, err := injector.Inject()
			if err != nil {
				return err
			}
			return subCmd.run(cfg, stat, innerCmd, args)
		}
		parentCobraCmd.AddCommand(cmd)
	}

	add(&snapshotCommand{}, rootCobraCmd)
	add(&runCommand{}, rootCobraCmd)
	add(&releaseCommand{}, rootCobraCmd)

	return rootCobraCmd
}

type command interface {
	register() *cobra.Command
	run(cfg *config.Config, stat stats.StatsReceiver, cmd *cobra.Command, args []string) error
}

type snapshotCommand struct {
	prefix string
	noPush bool
}

func (c *snapshotCommand) register() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "capture the current tree state (uncommitted and untracked included) into a revision branch",
	}
	cmd.Flags().StringVar(&c.prefix, "prefix", "", "revision name prefix (default: branch_prefix from config)")
	cmd.Flags().BoolVar(&c.noPush, "no_push", false, "skip publishing the revision branch to the remote")
	return cmd
}

func (c *snapshotCommand) run(cfg *config.Config, stat stats.StatsReceiver, _ *cobra.Command, _ []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	r, err := repo.NewRepository(wd)
	if err != nil {
		return err
	}
	tmp, err := temp.TempDirDefault()
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp.Dir)

	prefix := c.prefix
	if prefix == "" {
		prefix = cfg.BranchPrefix
	}
	snap := snapshotter.New(r, tmp, cfg.PushToRemote && !c.noPush, stat.Scope("snapshotter"))
	rev, err := snap.CreateRevision(prefix)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", rev.ID, rev.SHA)
	return nil
}

type runCommand struct {
	jobs    int
	isolate bool
}

func (c *runCommand) register() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run -- cmd [args...]",
		Short: "run a batch of jobs, each executing cmd against its own isolated view",
	}
	cmd.Flags().IntVar(&c.jobs, "jobs", 1, "number of jobs to launch")
	cmd.Flags().BoolVar(&c.isolate, "isolate", false, "force isolation on even if disabled in config")
	return cmd
}

func (c *runCommand) run(cfg *config.Config, stat stats.StatsReceiver, _ *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("run: no command given")
	}
	if c.isolate {
		cfg.Enabled = true
	}
	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	backend := runner.NewLocalBackend(c.jobs)
	launcher, err := runner.NewGitLauncher(cfg, wd, backend, stat)
	if err != nil {
		return err
	}

	jobs := make([]runner.JobSpec, c.jobs)
	for i := range jobs {
		jobs[i] = runner.JobSpec{ID: fmt.Sprintf("job-%d", i), Task: execTask(args)}
	}
	results := launcher.Launch(jobs)

	failed := 0
	for _, r := range results {
		if r.IsolationErr != nil {
			log.Warnf("cli: %v ran without isolation: %v", r.JobID, r.IsolationErr)
		}
		if r.Err != nil {
			failed++
			log.Errorf("cli: %v %v: %v", r.JobID, r.State, r.Err)
			continue
		}
		log.Infof("cli: %v %v", r.JobID, r.State)
		if out, ok := r.Value.(string); ok && out != "" {
			fmt.Print(out)
		}
	}
	if failed > 0 {
		return fmt.Errorf("run: %d of %d jobs failed", failed, len(results))
	}
	return nil
}

// execTask runs argv with the job's work root as its working directory.
// The root is threaded explicitly; jobs share the CLI process.
func execTask(argv []string) runner.TaskFn {
	return func(workRoot string) (interface{}, error) {
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Dir = workRoot
		out, err := cmd.CombinedOutput()
		if err != nil {
			return nil, sberrors.NewError(
				errors.Wrapf(err, "cli: could not exec %v: %s", argv, out),
				sberrors.CouldNotExecExitCode)
		}
		return string(out), nil
	}
}

type releaseCommand struct {
}

func (c *releaseCommand) register() *cobra.Command {
	return &cobra.Command{
		Use:   "release path [path...]",
		Short: "remove view directories left behind by a failed cleanup",
	}
}

func (c *releaseCommand) run(_ *config.Config, _ stats.StatsReceiver, _ *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("release: no paths given")
	}
	for _, path := range args {
		// Only directories this tool created are removable; anything else
		// is refused rather than guessed at.
		if !strings.HasPrefix(filepath.Base(path), worktree.ViewDirPrefix) {
			return fmt.Errorf("release: %v is not a %v* directory, refusing to remove", path, worktree.ViewDirPrefix)
		}
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrapf(err, "release: could not remove %v", path)
		}
		log.Infof("cli: removed view directory %v", path)
	}
	return nil
}
