// Package launcher starts a worker in a detached process under one of two
// backends (tmux or codex_exec), writes its PidMeta, and arranges for an
// auto-cleanup watcher to reconcile state once the worker exits.
package launcher

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/jaycho46/codex-teams/internal/codexerr"
	"github.com/jaycho46/codex-teams/internal/config"
	"github.com/jaycho46/codex-teams/internal/layout"
	"github.com/jaycho46/codex-teams/internal/statestore"
	"github.com/jaycho46/codex-teams/internal/tmux"
)

// Backend is one of the two worker invocation strategies.
type Backend string

const (
	Tmux      Backend = "tmux"
	CodexExec Backend = "codex_exec"
)

// flagFullAuto is the configured flag that must be replaced for a worker
// launch: full-auto sandboxing forbids writes to .git/worktrees lock files
// the worker needs to finalize its task.
const flagFullAuto = "--full-auto"

// flagBypassSandbox grants write access to the worktree's git administrative
// files, required because the worker must update refs and indexes under
// .git/worktrees/<name> from inside its own worktree.
const flagBypassSandbox = "--dangerously-bypass-approvals-and-sandbox"

// Validate checks that backend is usable before any mutation happens.
func Validate(backend Backend) error {
	switch backend {
	case Tmux:
		t := tmux.New()
		if !t.IsAvailable() {
			return codexerr.New(codexerr.MissingPrerequisite, "tmux backend selected but tmux is not available", "try --no-launch or set runtime.backend = \"codex_exec\" in orchestrator.toml")
		}
		return nil
	case CodexExec:
		return nil
	default:
		return codexerr.New(codexerr.MissingPrerequisite, "unknown launch backend", string(backend))
	}
}

// PromptData is substituted into the worker prompt template.
type PromptData struct {
	TaskID      string
	Title       string
	Agent       string
	Scope       string
	Worktree    string
	StateDir    string
	PrimaryRepo string
	CLIPath     string
}

var promptTemplate = template.Must(template.New("prompt").Parse(`You are {{.Agent}}, working task {{.TaskID}}: {{.Title}}.

Your worktree: {{.Worktree}}
State directory: {{.StateDir}}
Scope: {{.Scope}}

You must finish this task by running:
  {{.CLIPath}} task complete {{.Agent}} {{.Scope}} {{.TaskID}}

Do not run task lock, task update, or task heartbeat yourself — those are
managed by the orchestrator. Never mark this task DONE without having
delivered the files the task spec asks for, and never complete with a
generic summary like "done" — describe what changed.
`))

// RenderPrompt renders the worker's launch prompt.
func RenderPrompt(data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return buf.String(), nil
}

// BuildArgs returns flags with any full-auto sandbox flag replaced by the
// bypass-sandbox flag the worker needs to touch .git/worktrees.
func BuildArgs(flags []string) []string {
	out := make([]string, 0, len(flags)+1)
	sawSandboxFlag := false
	for _, f := range flags {
		if f == flagFullAuto {
			out = append(out, flagBypassSandbox)
			sawSandboxFlag = true
			continue
		}
		if strings.HasPrefix(f, "--sandbox") || f == flagBypassSandbox {
			sawSandboxFlag = true
		}
		out = append(out, f)
	}
	if !sawSandboxFlag {
		out = append(out, flagBypassSandbox)
	}
	return out
}

// Request describes one worker launch.
type Request struct {
	TaskID        string
	Title         string
	Agent         string
	Scope         string
	Worktree      string
	StateDir      string
	PrimaryRepo   string
	CLIPath       string
	WorkerBinary  string
	WorkerFlags   []string
	Backend       Backend
	Trigger       string
}

// Result describes a successfully launched worker.
type Result struct {
	Pid         int
	LaunchLabel string
	TmuxSession string
	LogFile     string
}

// Launch validates the backend, renders the prompt, spawns the worker
// detached from the caller, writes its PidMeta, and spawns an auto-cleanup
// watcher bound to the worker's pid. On any failure after the worker
// process exists, it is killed before the error is returned.
func Launch(store *statestore.Store, req Request, now time.Time) (*Result, error) {
	if err := Validate(req.Backend); err != nil {
		return nil, err
	}

	prompt, err := RenderPrompt(PromptData{
		TaskID: req.TaskID, Title: req.Title, Agent: req.Agent, Scope: req.Scope,
		Worktree: req.Worktree, StateDir: req.StateDir, PrimaryRepo: req.PrimaryRepo, CLIPath: req.CLIPath,
	})
	if err != nil {
		return nil, codexerr.Wrap(codexerr.WorkerLaunch, "rendering prompt", req.TaskID, err)
	}

	logsDir := layout.LogsDirPath(req.StateDir)
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, codexerr.Wrap(codexerr.WorkerLaunch, "creating logs directory", logsDir, err)
	}
	// uuid rather than a timestamp suffix: two starts landing in the same
	// second (possible once MaxStart lets the Scheduler fire several tasks
	// back to back) must never collide on log file or tmux session name.
	launchLabel := fmt.Sprintf("%s-%s", layout.Slug(req.TaskID), uuid.New().String()[:8])
	logFile := filepath.Join(logsDir, launchLabel+".log")

	promptFile := filepath.Join(logsDir, launchLabel+".prompt")
	if err := os.WriteFile(promptFile, []byte(prompt), 0644); err != nil {
		return nil, codexerr.Wrap(codexerr.WorkerLaunch, "writing prompt file", promptFile, err)
	}

	args := BuildArgs(req.WorkerFlags)
	env := config.MergeEnv(
		config.EnvMap(os.Environ()),
		config.WorkerEnv(config.WorkerEnvConfig{
			Agent: req.Agent, Scope: req.Scope, TaskID: req.TaskID,
			StateDir: req.StateDir, Worktree: req.Worktree, PrimaryRepo: req.PrimaryRepo,
		}),
	)

	var pid int
	var tmuxSession string
	switch req.Backend {
	case Tmux:
		tmuxSession = "codex-" + launchLabel
		command := buildShellCommand(req.WorkerBinary, append(args, promptFile), env, logFile)
		t := tmux.New()
		if err := t.NewSessionWithCommand(tmuxSession, req.Worktree, command); err != nil {
			return nil, codexerr.Wrap(codexerr.WorkerLaunch, "starting tmux session", tmuxSession, err)
		}
		gotPid, err := t.GetPanePID(tmuxSession)
		if err != nil {
			_ = t.KillSession(tmuxSession)
			return nil, codexerr.Wrap(codexerr.WorkerLaunch, "reading tmux pane pid", tmuxSession, err)
		}
		parsedPid, err := strconv.Atoi(strings.TrimSpace(gotPid))
		if err != nil {
			_ = t.KillSession(tmuxSession)
			return nil, codexerr.Wrap(codexerr.WorkerLaunch, "parsing tmux pane pid", gotPid, err)
		}
		pid = parsedPid
	case CodexExec:
		spawnedPid, err := spawnDetachedPty(req.CLIPath, req.WorkerBinary, append(args, promptFile), env, req.Worktree, logFile)
		if err != nil {
			return nil, codexerr.Wrap(codexerr.WorkerLaunch, "spawning codex_exec worker", req.TaskID, err)
		}
		pid = spawnedPid
	}

	meta := &statestore.PidMeta{
		Pid: pid, TaskID: req.TaskID, Owner: req.Agent, Scope: req.Scope,
		Worktree: req.Worktree, StartedAt: now, LaunchBackend: string(req.Backend),
		LaunchLabel: launchLabel, TmuxSession: tmuxSession, LogFile: logFile, Trigger: req.Trigger,
	}
	if err := store.WritePidMeta(meta); err != nil {
		killWorker(req.Backend, pid, tmuxSession)
		return nil, codexerr.Wrap(codexerr.WorkerLaunch, "writing pidmeta, worker killed", req.TaskID, err)
	}

	if err := spawnAutoCleanupWatcher(req.CLIPath, req.TaskID, pid); err != nil {
		// Not fatal to the launch itself: the worker is running and recorded.
		// A missed watcher means cleanup falls to `task cleanup-stale` instead.
		return &Result{Pid: pid, LaunchLabel: launchLabel, TmuxSession: tmuxSession, LogFile: logFile}, nil
	}

	return &Result{Pid: pid, LaunchLabel: launchLabel, TmuxSession: tmuxSession, LogFile: logFile}, nil
}

// KillLaunchLabel removes a launchd job by label, best effort: a missing
// launchctl binary or an already-gone label is not an error.
func KillLaunchLabel(label string) {
	if label == "" {
		return
	}
	if _, err := exec.LookPath("launchctl"); err != nil {
		return
	}
	_ = exec.Command("launchctl", "remove", label).Run()
}

func killWorker(backend Backend, pid int, tmuxSession string) {
	if backend == Tmux && tmuxSession != "" {
		_ = tmux.New().KillSession(tmuxSession)
		return
	}
	if pid > 0 {
		if proc, err := os.FindProcess(pid); err == nil {
			_ = proc.Signal(syscall.SIGKILL)
		}
	}
}

func buildShellCommand(binary string, args []string, env map[string]string, logFile string) string {
	var b strings.Builder
	for k, v := range env {
		fmt.Fprintf(&b, "%s=%s ", k, shellQuote(v))
	}
	b.WriteString(shellQuote(binary))
	for _, a := range args {
		b.WriteString(" ")
		b.WriteString(shellQuote(a))
	}
	fmt.Fprintf(&b, " 2>&1 | tee -a %s", shellQuote(logFile))
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// spawnDetachedPty re-invokes our own CLI binary as a detached grandchild
// that runs the worker supervisor (see RunSupervisor): this keeps the pty
// copy loop alive independent of the launching process's own lifetime.
func spawnDetachedPty(cliPath, workerBinary string, args []string, env map[string]string, dir, logFile string) (int, error) {
	supervisorArgs := []string{"internal", "run-worker-pty", "--dir", dir, "--log", logFile, "--bin", workerBinary}
	supervisorArgs = append(supervisorArgs, "--")
	supervisorArgs = append(supervisorArgs, args...)

	cmd := exec.Command(cliPath, supervisorArgs...)
	cmd.Dir = dir
	cmd.Env = config.EnvForExecCommand(env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, err
	}
	defer devnull.Close()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	return cmd.Process.Pid, nil
}

// spawnAutoCleanupWatcher starts a detached child that blocks in
// "internal watch-pid-exit" until the worker pid dies, then re-execs
// "task auto-cleanup-exit" — it re-execs the same binary rather than
// keeping the wait loop in this process's memory, so the watcher survives
// independent of whatever spawned it.
func spawnAutoCleanupWatcher(cliPath, taskID string, pid int) error {
	cmd := exec.Command(cliPath, "internal", "watch-pid-exit", taskID, strconv.Itoa(pid))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer devnull.Close()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull
	return cmd.Start()
}

// DiagnosticLogger returns a logger appending to
// <state>/orchestrator/logs/orchestrator.log. The detached re-exec targets
// run with stdout/stderr on /dev/null, so this file is the only place
// their lifecycle events can land; if it cannot be opened the logger
// discards instead of failing the caller.
func DiagnosticLogger(stateDir string) *log.Logger {
	dir := layout.LogsDirPath(stateDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return log.New(io.Discard, "", 0)
	}
	f, err := os.OpenFile(filepath.Join(dir, "orchestrator.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return log.New(io.Discard, "", 0)
	}
	return log.New(f, "", log.LstdFlags)
}

// WaitPidExitThenExec polls pid until it is no longer alive, then execs
// (replaces this process's image with) the auto-cleanup-exit subcommand —
// used by "internal watch-pid-exit" so the watcher never needs a second
// fork once the wait is over.
func WaitPidExitThenExec(cliPath, stateDir, taskID string, pid int) error {
	for statestore.IsAlive(pid) {
		time.Sleep(layout.WatcherPollInterval)
	}
	DiagnosticLogger(stateDir).Printf("watch-pid-exit: worker pid %d for %s exited, invoking auto-cleanup", pid, taskID)
	args := []string{cliPath, "task", "auto-cleanup-exit", taskID, strconv.Itoa(pid)}
	return syscall.Exec(cliPath, args, os.Environ())
}
