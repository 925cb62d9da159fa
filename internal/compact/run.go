// Package compact orchestrates compaction of every registered VDI disk:
// preflight both external executables, shut down running machines,
// enumerate disks, and per disk clone-compact, recycle the original,
// and rename the clone into place.
//
// The workflow is strictly sequential. Every child process is waited on
// before the next step, because the compactor must never run against a
// disk a live machine holds open, and the clone filename is fixed per
// disk so two compactions of the same disk would collide.
//
// One disk's failure never aborts the run; only preflight failures do.
package compact

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jbweber/vdishrink/internal/clonevdi"
	"github.com/jbweber/vdishrink/internal/vbox"
)

// Deps are the injected collaborators of the workflow. Interfaces so
// tests can run the whole sequence without VirtualBox installed.
type Deps struct {
	Inventory machineInventory
	Compactor diskCompactor
	Shutdown  shutdowner
	Recycler  recycler
	Gate      Gate
}

// Run executes the full workflow and returns the run report.
//
// A returned error means the run never got going (preflight or machine
// enumeration); per-disk problems are recorded in the report instead.
func Run(ctx context.Context, cfg Config, deps Deps) (*Report, error) {
	if deps.Gate == nil {
		deps.Gate = AllowAll
	}

	if err := preflight(ctx, cfg, deps.Compactor); err != nil {
		return nil, err
	}

	log.Printf("Shutting down running VMs...")
	if err := deps.Shutdown.Run(ctx); err != nil {
		log.Printf("Warning: shutdown phase incomplete: %v", err)
	}

	names, err := deps.Inventory.ListVMs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list VMs: %w", err)
	}

	report := &Report{DryRun: cfg.DryRun}
	for _, name := range names {
		disk, err := deps.Inventory.MachineDiskPath(ctx, name)
		if err != nil {
			log.Printf("Warning: failed to inspect VM %q: %v", name, err)
			report.add(DiskResult{VM: name, Status: StatusFailed, Reason: err.Error()})
			continue
		}
		if disk == "" {
			log.Printf("VM %q has no %s disk, skipping", name, vbox.DiskExtension)
			continue
		}

		report.add(processDisk(ctx, cfg, deps, name, disk))
	}

	log.Printf("Done: %d compacted, %d skipped, %d failed, %d bytes freed",
		report.Compacted, report.Skipped, report.Failed, report.BytesFreed)
	return report, nil
}

// preflight verifies both external executables before any VM is touched.
func preflight(ctx context.Context, cfg Config, comp diskCompactor) error {
	if _, err := os.Stat(cfg.VBoxManagePath); err != nil {
		return fmt.Errorf("management tool not found at %s: %w", cfg.VBoxManagePath, err)
	}
	if err := comp.Verify(ctx); err != nil {
		return err
	}
	return nil
}

// processDisk runs the compact/recycle/rename sequence for one disk.
// Each mutation passes the gate individually; when the compaction itself
// is denied (dry-run), the remaining actions are still offered to the
// gate so the report enumerates everything a real run would do.
func processDisk(ctx context.Context, cfg Config, deps Deps, vm, disk string) DiskResult {
	res := DiskResult{VM: vm, Disk: disk}

	if uuid, err := deps.Inventory.MachineDiskUUID(ctx, vm); err == nil {
		res.UUID = uuid
	}

	target := clonevdi.CloneTarget(disk)

	// A leftover clone from an interrupted run blocks this disk until
	// the operator removes it. Never overwrite it.
	if _, err := os.Stat(target); err == nil {
		log.Printf("Warning: %s already exists, skipping %s (remove the leftover clone to re-process)", target, disk)
		res.Status = StatusSkipped
		res.Reason = fmt.Sprintf("clone file %s already exists", target)
		return res
	}

	before, err := os.Stat(disk)
	if err != nil {
		log.Printf("Warning: disk %s not accessible: %v", disk, err)
		res.Status = StatusFailed
		res.Reason = err.Error()
		return res
	}
	res.BytesBefore = before.Size()

	if !deps.Gate(fmt.Sprintf("compact %q to %q", disk, target)) {
		// Walk the rest of the control path for reporting.
		deps.Gate(fmt.Sprintf("recycle %q", disk))
		deps.Gate(fmt.Sprintf("rename %q to %q", target, disk))
		if cfg.EmptyTrash {
			deps.Gate(fmt.Sprintf("empty the trash for %q", disk))
		}
		res.Status = StatusPlanned
		return res
	}

	log.Printf("Compacting %s...", disk)
	if err := deps.Compactor.Clone(ctx, disk, target); err != nil {
		log.Printf("Warning: %v", err)
		res.Status = StatusFailed
		res.Reason = err.Error()
		return res
	}

	after, err := os.Stat(target)
	if err != nil {
		// The compactor reported success but left nothing behind.
		log.Printf("Warning: compactor reported success but %s is missing", target)
		res.Status = StatusFailed
		res.Reason = fmt.Sprintf("expected clone %s missing after compaction", target)
		return res
	}
	res.BytesAfter = after.Size()

	if deps.Gate(fmt.Sprintf("recycle %q", disk)) {
		if err := deps.Recycler.Trash(disk); err != nil {
			log.Printf("Warning: failed to recycle %s: %v", disk, err)
			res.Status = StatusFailed
			res.Reason = err.Error()
			return res
		}
	}

	if deps.Gate(fmt.Sprintf("rename %q to %q", target, disk)) {
		if err := os.Rename(target, disk); err != nil {
			log.Printf("Warning: failed to rename %s: %v", target, err)
			res.Status = StatusFailed
			res.Reason = err.Error()
			return res
		}
	}

	if cfg.EmptyTrash && deps.Gate(fmt.Sprintf("empty the trash for %q", disk)) {
		if err := deps.Recycler.Empty(disk); err != nil {
			// The disk is already compacted; a full bin is only a warning.
			log.Printf("Warning: failed to empty trash for %s: %v", disk, err)
		}
	}

	log.Printf("Compacted %s: %d -> %d bytes", disk, res.BytesBefore, res.BytesAfter)
	res.Status = StatusCompacted
	return res
}
