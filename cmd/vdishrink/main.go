package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbweber/vdishrink/internal/clonevdi"
	"github.com/jbweber/vdishrink/internal/compact"
	"github.com/jbweber/vdishrink/internal/hostproc"
	"github.com/jbweber/vdishrink/internal/output"
	"github.com/jbweber/vdishrink/internal/shutdown"
	"github.com/jbweber/vdishrink/internal/trash"
	"github.com/jbweber/vdishrink/internal/vbox"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	flagCloneVDI   string
	flagVBoxManage string
	flagEmptyTrash bool
	flagDryRun     bool
	flagOutput     string
	flagNoHeaders  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vdishrink",
	Short: "Compact every VirtualBox VDI disk image",
	Long: `vdishrink compacts the disk image of every VM registered with VirtualBox.

It shuts down running VMs (gracefully when possible), runs the external
CloneVDI compactor once per .vdi disk, moves the original to the trash,
and renames the compacted clone into the original's place, so every VM
keeps referencing the same path and disk UUID.

A single disk's failure does not stop the run; the run only aborts when
VBoxManage or the compactor cannot be located or validated.`,
	Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&flagCloneVDI, "clonevdi", "",
		"path to the CloneVDI executable (default: next to vdishrink)")
	rootCmd.Flags().StringVar(&flagVBoxManage, "vboxmanage", "",
		"path to VBoxManage (default: $VBOX_INSTALL_PATH, then $PATH)")
	rootCmd.Flags().BoolVar(&flagEmptyTrash, "empty-trash", false,
		"empty the trash of each disk's filesystem after compaction (irreversible)")
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false,
		"report every intended action without changing anything")
	rootCmd.Flags().StringVarP(&flagOutput, "output", "o", string(output.FormatTable),
		"run report format: table, yaml, or json")
	rootCmd.Flags().BoolVar(&flagNoHeaders, "no-headers", false,
		"omit headers in table output")
}

func run(cmd *cobra.Command, args []string) error {
	if err := output.ValidateFormat(flagOutput); err != nil {
		return err
	}

	ctx := context.Background()

	vbPath, err := vbox.Resolve(flagVBoxManage)
	if err != nil {
		return err
	}

	compPath, err := clonevdi.Resolve(flagCloneVDI, promptForCompactor)
	if err != nil {
		return err
	}

	gate := compact.Gate(compact.AllowAll)
	if flagDryRun {
		fmt.Println("Dry run: no VM will be shut down and no file will be changed")
		gate = compact.DryRun
	}

	client := vbox.New(vbPath)
	deps := compact.Deps{
		Inventory: client,
		Compactor: clonevdi.New(compPath),
		Recycler:  trash.New(),
		Gate:      gate,
		Shutdown: &shutdown.Sequencer{
			Machines: client,
			Procs:    hostproc.New(),
			Gate:     shutdown.Gate(gate),
		},
	}
	cfg := compact.Config{
		VBoxManagePath: vbPath,
		EmptyTrash:     flagEmptyTrash,
		DryRun:         flagDryRun,
	}

	report, err := compact.Run(ctx, cfg, deps)
	if err != nil {
		return err
	}

	formatter, err := output.NewFormatter(output.Options{
		Format:    output.Format(flagOutput),
		NoHeaders: flagNoHeaders,
	})
	if err != nil {
		return err
	}

	text, err := formatter.FormatReport(report)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}

// promptForCompactor is the fallback when no CloneVDI executable can be
// found: ask the operator for a path. An empty answer aborts the run.
func promptForCompactor() (string, error) {
	fmt.Fprint(os.Stderr, "CloneVDI executable not found. Enter a path (empty aborts): ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
