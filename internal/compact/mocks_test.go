package compact

import (
	"context"
	"os"
	"sync"
)

// mockInventory is a mock machineInventory.
type mockInventory struct {
	listVMsFunc  func(ctx context.Context) ([]string, error)
	diskPathFunc func(ctx context.Context, name string) (string, error)
	diskUUIDFunc func(ctx context.Context, name string) (string, error)
}

func newMockInventory(disks map[string]string, order []string) *mockInventory {
	return &mockInventory{
		listVMsFunc: func(context.Context) ([]string, error) {
			return order, nil
		},
		diskPathFunc: func(_ context.Context, name string) (string, error) {
			return disks[name], nil
		},
		diskUUIDFunc: func(context.Context, string) (string, error) {
			return "", nil
		},
	}
}

func (m *mockInventory) ListVMs(ctx context.Context) ([]string, error) {
	return m.listVMsFunc(ctx)
}

func (m *mockInventory) MachineDiskPath(ctx context.Context, name string) (string, error) {
	return m.diskPathFunc(ctx, name)
}

func (m *mockInventory) MachineDiskUUID(ctx context.Context, name string) (string, error) {
	return m.diskUUIDFunc(ctx, name)
}

// mockCompactor is a mock diskCompactor. The default Clone writes a
// smaller "compacted" file at dst, like the real tool would.
type mockCompactor struct {
	mu sync.Mutex

	path       string
	verifyFunc func(ctx context.Context) error
	cloneFunc  func(ctx context.Context, src, dst string) error

	cloneCalls [][2]string
}

func newMockCompactor() *mockCompactor {
	m := &mockCompactor{path: "/opt/CloneVDI"}
	m.verifyFunc = func(context.Context) error { return nil }
	m.cloneFunc = func(_ context.Context, src, dst string) error {
		return os.WriteFile(dst, []byte("compacted"), 0o644)
	}
	return m
}

func (m *mockCompactor) Path() string { return m.path }

func (m *mockCompactor) Verify(ctx context.Context) error {
	return m.verifyFunc(ctx)
}

func (m *mockCompactor) Clone(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	m.cloneCalls = append(m.cloneCalls, [2]string{src, dst})
	m.mu.Unlock()
	return m.cloneFunc(ctx, src, dst)
}

// mockRecycler is a mock recycler. The default Trash really removes the
// file so the workflow's rename lands on a free path.
type mockRecycler struct {
	trashFunc func(path string) error
	emptyFunc func(path string) error

	trashCalls []string
	emptyCalls []string
}

func newMockRecycler() *mockRecycler {
	m := &mockRecycler{}
	m.trashFunc = func(path string) error { return os.Remove(path) }
	m.emptyFunc = func(string) error { return nil }
	return m
}

func (m *mockRecycler) Trash(path string) error {
	m.trashCalls = append(m.trashCalls, path)
	return m.trashFunc(path)
}

func (m *mockRecycler) Empty(path string) error {
	m.emptyCalls = append(m.emptyCalls, path)
	return m.emptyFunc(path)
}

// mockShutdown is a mock shutdowner.
type mockShutdown struct {
	runFunc func(ctx context.Context) error
	runs    int
}

func newMockShutdown() *mockShutdown {
	return &mockShutdown{runFunc: func(context.Context) error { return nil }}
}

func (m *mockShutdown) Run(ctx context.Context) error {
	m.runs++
	return m.runFunc(ctx)
}
