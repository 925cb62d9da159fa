package compact

import "context"

// machineInventory is the read-only slice of the vbox client the
// workflow needs for disk enumeration.
//
// In production this is satisfied by *vbox.Client.
// In tests it is satisfied by mock implementations.
type machineInventory interface {
	// ListVMs lists all registered machines, running or not.
	ListVMs(ctx context.Context) ([]string, error)

	// MachineDiskPath resolves a machine's disk image path; "" when the
	// machine has no disk in the supported format.
	MachineDiskPath(ctx context.Context, name string) (string, error)

	// MachineDiskUUID resolves the disk's image UUID; "" when unknown.
	MachineDiskUUID(ctx context.Context, name string) (string, error)
}

// diskCompactor produces a compacted clone of a disk image.
//
// In production this is satisfied by *clonevdi.Compactor.
type diskCompactor interface {
	// Path returns the compactor executable path.
	Path() string

	// Verify checks the executable exists and its version is supported.
	Verify(ctx context.Context) error

	// Clone compacts src into a new file at dst and blocks until done.
	Clone(ctx context.Context, src, dst string) error
}

// recycler soft-deletes files and empties the per-filesystem trash.
//
// In production this is satisfied by *trash.Bin.
type recycler interface {
	Trash(path string) error
	Empty(path string) error
}

// shutdowner runs the VM shutdown phase.
//
// In production this is satisfied by *shutdown.Sequencer.
type shutdowner interface {
	Run(ctx context.Context) error
}
