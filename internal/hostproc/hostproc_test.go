package hostproc

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func fakeManager(err error) (*Manager, *[]string) {
	calls := &[]string{}
	m := &Manager{
		run: func(_ context.Context, path string, args ...string) error {
			*calls = append(*calls, path+" "+strings.Join(args, " "))
			return err
		},
	}
	return m, calls
}

func TestRunning(t *testing.T) {
	ctx := context.Background()

	m, calls := fakeManager(nil)
	if !m.Running(ctx, GUIProcess) {
		t.Error("expected running=true when pgrep matches")
	}
	if (*calls)[0] != "pgrep -x VirtualBox" {
		t.Errorf("unexpected invocation: %s", (*calls)[0])
	}

	m, _ = fakeManager(errors.New("no matching process"))
	if m.Running(ctx, GUIProcess) {
		t.Error("expected running=false when pgrep finds nothing")
	}
}

func TestCloseAndKill(t *testing.T) {
	ctx := context.Background()
	m, calls := fakeManager(nil)

	if err := m.Close(ctx, GUIProcess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Kill(ctx, HelperProcess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"pkill -TERM -x VirtualBox",
		"pkill -KILL -x VBoxSVC",
	}
	for i := range want {
		if (*calls)[i] != want[i] {
			t.Errorf("invocation %d: got %q, want %q", i, (*calls)[i], want[i])
		}
	}
}
