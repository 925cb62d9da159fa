package shutdown

import (
	"context"
	"sync"
)

// mockMachines is a mock machineController with configurable behavior
// and call tracking.
type mockMachines struct {
	mu sync.Mutex

	listRunningFunc func(ctx context.Context) ([]string, error)
	powerStateFunc  func(ctx context.Context, name string) (string, error)
	powerButtonFunc func(ctx context.Context, name string) error
	powerOffFunc    func(ctx context.Context, name string) error

	powerButtonCalls []string
	powerOffCalls    []string
	powerStateCalls  []string
}

func newMockMachines() *mockMachines {
	m := &mockMachines{}
	m.listRunningFunc = func(context.Context) ([]string, error) {
		return nil, nil
	}
	// Default: already powered off
	m.powerStateFunc = func(context.Context, string) (string, error) {
		return "poweroff", nil
	}
	m.powerButtonFunc = func(context.Context, string) error { return nil }
	m.powerOffFunc = func(context.Context, string) error { return nil }
	return m
}

func (m *mockMachines) ListRunningVMs(ctx context.Context) ([]string, error) {
	return m.listRunningFunc(ctx)
}

func (m *mockMachines) MachinePowerState(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	m.powerStateCalls = append(m.powerStateCalls, name)
	m.mu.Unlock()
	return m.powerStateFunc(ctx, name)
}

func (m *mockMachines) PowerButton(ctx context.Context, name string) error {
	m.mu.Lock()
	m.powerButtonCalls = append(m.powerButtonCalls, name)
	m.mu.Unlock()
	return m.powerButtonFunc(ctx, name)
}

func (m *mockMachines) PowerOff(ctx context.Context, name string) error {
	m.mu.Lock()
	m.powerOffCalls = append(m.powerOffCalls, name)
	m.mu.Unlock()
	return m.powerOffFunc(ctx, name)
}

// mockProcs is a mock processManager.
type mockProcs struct {
	mu sync.Mutex

	runningFunc func(ctx context.Context, name string) bool

	closeCalls []string
	killCalls  []string
}

func newMockProcs() *mockProcs {
	m := &mockProcs{}
	// Default: nothing is running
	m.runningFunc = func(context.Context, string) bool { return false }
	return m
}

func (m *mockProcs) Running(ctx context.Context, name string) bool {
	return m.runningFunc(ctx, name)
}

func (m *mockProcs) Close(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls = append(m.closeCalls, name)
	return nil
}

func (m *mockProcs) Kill(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killCalls = append(m.killCalls, name)
	return nil
}
