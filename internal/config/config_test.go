package config

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestEnvMap(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want map[string]string
	}{
		{"empty", nil, map[string]string{}},
		{"simple", []string{"PATH=/usr/bin", "HOME=/root"}, map[string]string{"PATH": "/usr/bin", "HOME": "/root"}},
		{"value contains equals", []string{"FOO=a=b=c"}, map[string]string{"FOO": "a=b=c"}},
		{"no equals skipped", []string{"MALFORMED"}, map[string]string{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := EnvMap(c.in)
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("EnvMap(%v) = %v, want %v", c.in, got, c.want)
			}
		})
	}
}

func TestMergeEnvLaterWins(t *testing.T) {
	base := map[string]string{"CODEX_SCOPE": "app-shell", "PATH": "/usr/bin"}
	override := map[string]string{"CODEX_SCOPE": "backend"}
	got := MergeEnv(base, override)
	if got["CODEX_SCOPE"] != "backend" {
		t.Errorf("MergeEnv() CODEX_SCOPE = %q, want backend", got["CODEX_SCOPE"])
	}
	if got["PATH"] != "/usr/bin" {
		t.Errorf("MergeEnv() PATH = %q, want /usr/bin", got["PATH"])
	}
}

func TestScopeForOwner(t *testing.T) {
	cfg := Default()
	cfg.Owners = map[string]string{"AgentA": "app-shell"}

	scope, mapped := cfg.ScopeForOwner("AgentA")
	if !mapped || scope != "app-shell" {
		t.Errorf("ScopeForOwner(AgentA) = (%q, %v), want (app-shell, true)", scope, mapped)
	}

	scope, mapped = cfg.ScopeForOwner("AgentZ")
	if mapped || scope != "" {
		t.Errorf("ScopeForOwner(AgentZ) = (%q, %v), want (\"\", false)", scope, mapped)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.toml")
	cfg := Default()
	cfg.Owners["AgentA"] = "app-shell"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Owners["AgentA"] != "app-shell" {
		t.Errorf("Load() Owners[AgentA] = %q, want app-shell", got.Owners["AgentA"])
	}
	if got.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("Load() SchemaVersion = %d, want %d", got.SchemaVersion, CurrentSchemaVersion)
	}
}

func TestWorkerEnvSetsAgentIdentifyingVars(t *testing.T) {
	env := WorkerEnv(WorkerEnvConfig{
		Agent: "AgentA", Scope: "app-shell", TaskID: "T1-001",
		StateDir: "/repo/.state", Worktree: "/repo-agenta-t1-001", PrimaryRepo: "/repo",
	})
	want := map[string]string{
		"AI_STATE_DIR": "/repo/.state", "CODEX_AGENT": "AgentA", "CODEX_SCOPE": "app-shell",
		"CODEX_TASK_ID": "T1-001", "CODEX_WORKTREE": "/repo-agenta-t1-001", "CODEX_PRIMARY_REPO": "/repo",
	}
	if !reflect.DeepEqual(env, want) {
		t.Errorf("WorkerEnv() = %v, want %v", env, want)
	}
}

func TestEnvForExecCommandAppendsToProcessEnviron(t *testing.T) {
	got := EnvForExecCommand(map[string]string{"CODEX_SCOPE": "app-shell"})
	found := false
	for _, kv := range got {
		if kv == "CODEX_SCOPE=app-shell" {
			found = true
		}
	}
	if !found {
		t.Errorf("EnvForExecCommand() = %v, missing CODEX_SCOPE=app-shell", got)
	}
	if len(got) == 0 {
		t.Errorf("EnvForExecCommand() returned no entries")
	}
}

func TestSaveRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.toml")
	cfg := Default()
	cfg.SchemaVersion = CurrentSchemaVersion + 1
	if err := Save(path, cfg); err == nil {
		t.Fatalf("Save() with future schema_version should fail validation")
	}
}
