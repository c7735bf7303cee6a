package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"version", "status", "changes", "changelog", "rollback", "proposals", "gaps", "history"}
	have := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Fatalf("command %q not registered", name)
		}
	}
}

func TestFlagsDeclared(t *testing.T) {
	if changesCmd.Flags().Lookup("stats") == nil {
		t.Fatal("changes --stats missing")
	}
	if changelogCmd.Flags().Lookup("limit") == nil {
		t.Fatal("changelog --limit missing")
	}
	if rollbackCmd.Flags().Lookup("reason") == nil {
		t.Fatal("rollback --reason missing")
	}
	for _, name := range []string{"agent", "kind", "limit"} {
		if historyCmd.Flags().Lookup(name) == nil {
			t.Fatalf("history --%s missing", name)
		}
	}
}

// pointAtTempState gives the command a config whose state lives in a
// throwaway directory.
func pointAtTempState(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	contents := fmt.Sprintf(`{
		"paths": {"stateRoot": %q},
		"journal": {"enabled": true, "dbPath": %q}
	}`, filepath.Join(dir, "state"), filepath.Join(dir, "journal.db"))
	if err := os.WriteFile(cfgPath, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FORGELOOP_CONFIG", cfgPath)
}

func TestOpenCoreFromConfig(t *testing.T) {
	pointAtTempState(t)
	c, err := openCore()
	if err != nil {
		t.Fatalf("open core: %v", err)
	}
	defer c.Close()
	if c.Tracker == nil || c.Engine == nil {
		t.Fatal("core not fully wired")
	}
}

func TestRollbackCommandUnknownChange(t *testing.T) {
	pointAtTempState(t)
	if err := rollbackCmd.RunE(rollbackCmd, []string{"chg_missing"}); err == nil {
		t.Fatal("rollback of unknown change should error")
	}
}

func TestChangelogCommandRuns(t *testing.T) {
	pointAtTempState(t)
	if err := changelogCmd.RunE(changelogCmd, nil); err != nil {
		t.Fatalf("changelog: %v", err)
	}
}
