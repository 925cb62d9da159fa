// Package shutdown powers off every running VirtualBox machine and
// terminates leftover VirtualBox host processes.
//
// The compactor must never run against a disk a live machine is using,
// so this phase runs to completion before any disk is touched. The whole
// phase is best-effort: a machine that won't shut down gracefully is
// force-powered off, and process termination is attempted without
// re-verification.
package shutdown

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jbweber/vdishrink/internal/hostproc"
	"github.com/jbweber/vdishrink/internal/vbox"
)

const (
	defaultGracefulTimeout = 60 * time.Second
	defaultPollInterval    = time.Second
	defaultGUITimeout      = 5 * time.Second
	defaultSettleDelay     = 2 * time.Second
)

// machineController is the slice of the vbox client this package needs.
// Satisfied by *vbox.Client in production, mocks in tests.
type machineController interface {
	ListRunningVMs(ctx context.Context) ([]string, error)
	MachinePowerState(ctx context.Context, name string) (string, error)
	PowerButton(ctx context.Context, name string) error
	PowerOff(ctx context.Context, name string) error
}

// processManager signals host processes by name.
// Satisfied by *hostproc.Manager in production, mocks in tests.
type processManager interface {
	Running(ctx context.Context, name string) bool
	Close(ctx context.Context, name string) error
	Kill(ctx context.Context, name string) error
}

// Gate decides whether a mutating action may execute. In dry-run mode it
// reports the action and denies it.
type Gate func(action string) bool

// Sequencer shuts down running machines and the VirtualBox processes.
// Zero-valued durations get the production defaults; tests shrink them.
type Sequencer struct {
	Machines machineController
	Procs    processManager
	Gate     Gate

	GracefulTimeout time.Duration
	PollInterval    time.Duration
	GUITimeout      time.Duration
	SettleDelay     time.Duration
}

// Run executes the shutdown phase. Only a failure to enumerate running
// machines is returned; everything downstream is logged and absorbed.
func (s *Sequencer) Run(ctx context.Context) error {
	s.applyDefaults()

	names, err := s.Machines.ListRunningVMs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list running VMs: %w", err)
	}

	if len(names) == 0 {
		log.Printf("No running VMs")
	}
	for _, name := range names {
		s.shutdownVM(ctx, name)
	}

	s.terminateProcesses(ctx)
	return nil
}

func (s *Sequencer) applyDefaults() {
	if s.Gate == nil {
		s.Gate = func(string) bool { return true }
	}
	if s.GracefulTimeout == 0 {
		s.GracefulTimeout = defaultGracefulTimeout
	}
	if s.PollInterval == 0 {
		s.PollInterval = defaultPollInterval
	}
	if s.GUITimeout == 0 {
		s.GUITimeout = defaultGUITimeout
	}
	if s.SettleDelay == 0 {
		s.SettleDelay = defaultSettleDelay
	}
}

// shutdownVM sends the ACPI power button, polls for poweroff, and falls
// back to a forced power-off when the machine doesn't comply in time.
func (s *Sequencer) shutdownVM(ctx context.Context, name string) {
	if !s.Gate(fmt.Sprintf("shut down VM %q", name)) {
		return
	}

	log.Printf("Shutting down VM %q...", name)
	if err := s.Machines.PowerButton(ctx, name); err != nil {
		log.Printf("Warning: ACPI power button for %q failed: %v", name, err)
	}

	if s.waitForPowerOff(ctx, name, s.GracefulTimeout) {
		log.Printf("VM %q shut down gracefully", name)
		return
	}

	log.Printf("VM %q did not shut down in %v, forcing power off", name, s.GracefulTimeout)
	if err := s.Machines.PowerOff(ctx, name); err != nil {
		log.Printf("Warning: forced power off for %q failed: %v", name, err)
	}
	// Give the machine process a moment to release the disk file.
	s.sleep(ctx, s.SettleDelay)
}

// waitForPowerOff polls the machine's power state once per interval
// until it reports poweroff or the timeout elapses.
func (s *Sequencer) waitForPowerOff(ctx context.Context, name string, timeout time.Duration) bool {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return false
		case <-ticker.C:
			state, err := s.Machines.MachinePowerState(ctx, name)
			if err != nil {
				log.Printf("Warning: failed to check state of %q: %v", name, err)
				continue
			}
			if vbox.PoweredOff(state) {
				return true
			}
		}
	}
}

// terminateProcesses closes the VirtualBox GUI and kills the orphaned
// VBoxSVC helper. The helper has no window, so it goes straight to a
// forced kill.
func (s *Sequencer) terminateProcesses(ctx context.Context) {
	if s.Procs.Running(ctx, hostproc.GUIProcess) {
		if s.Gate(fmt.Sprintf("close the %s application", hostproc.GUIProcess)) {
			log.Printf("Closing the %s application...", hostproc.GUIProcess)
			if err := s.Procs.Close(ctx, hostproc.GUIProcess); err != nil {
				log.Printf("Warning: close request failed: %v", err)
			}
			if s.waitForExit(ctx, hostproc.GUIProcess, s.GUITimeout) {
				log.Printf("%s exited", hostproc.GUIProcess)
			} else {
				log.Printf("%s still running, terminating", hostproc.GUIProcess)
				if err := s.Procs.Kill(ctx, hostproc.GUIProcess); err != nil {
					log.Printf("Warning: failed to terminate %s: %v", hostproc.GUIProcess, err)
				}
			}
		}
	}

	if s.Procs.Running(ctx, hostproc.HelperProcess) {
		if s.Gate(fmt.Sprintf("terminate the %s helper", hostproc.HelperProcess)) {
			log.Printf("Terminating orphaned %s helper...", hostproc.HelperProcess)
			if err := s.Procs.Kill(ctx, hostproc.HelperProcess); err != nil {
				log.Printf("Warning: failed to terminate %s: %v", hostproc.HelperProcess, err)
			}
		}
	}
}

func (s *Sequencer) waitForExit(ctx context.Context, name string, timeout time.Duration) bool {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return false
		case <-ticker.C:
			if !s.Procs.Running(ctx, name) {
				return true
			}
		}
	}
}

func (s *Sequencer) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
