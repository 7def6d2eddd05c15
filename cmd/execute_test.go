package cmd

import (
	"os"
	"testing"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	old := os.Args
	t.Cleanup(func() { os.Args = old })
	os.Args = append([]string{"lumen"}, args...)
}

func TestExecuteHelp(t *testing.T) {
	withArgs(t, "help")
	if err := Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestExecuteVersion(t *testing.T) {
	withArgs(t, "--version")
	if err := Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestExecuteNoArgsPrintsHelp(t *testing.T) {
	withArgs(t)
	if err := Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	withArgs(t, "frobnicate")
	if err := Execute(); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
