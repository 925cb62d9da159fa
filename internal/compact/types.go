package compact

// Config carries everything the workflow needs, resolved once at
// startup. Nothing downstream reads flags or the environment.
type Config struct {
	// VBoxManagePath is the resolved management executable.
	VBoxManagePath string

	// EmptyTrash additionally empties the trash of each compacted
	// disk's filesystem. Destructive and therefore opt-in.
	EmptyTrash bool

	// DryRun reports every intended mutation without performing any.
	DryRun bool
}

// Status classifies the outcome for one disk.
type Status string

const (
	// StatusCompacted means the disk was replaced by its compacted clone.
	StatusCompacted Status = "compacted"
	// StatusPlanned means dry-run mode reported the work without doing it.
	StatusPlanned Status = "planned"
	// StatusSkipped means the disk was left untouched, e.g. because a
	// stale clone file was in the way.
	StatusSkipped Status = "skipped"
	// StatusFailed means compaction or the swap afterwards failed; the
	// run continues with the next disk.
	StatusFailed Status = "failed"
)

// DiskResult is the outcome for a single machine's disk.
type DiskResult struct {
	VM     string `json:"vm" yaml:"vm"`
	Disk   string `json:"disk" yaml:"disk"`
	UUID   string `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Status Status `json:"status" yaml:"status"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	BytesBefore int64 `json:"bytes_before,omitempty" yaml:"bytes_before,omitempty"`
	BytesAfter  int64 `json:"bytes_after,omitempty" yaml:"bytes_after,omitempty"`
}

// Freed returns the bytes reclaimed for this disk, never negative.
func (r DiskResult) Freed() int64 {
	if r.Status != StatusCompacted || r.BytesAfter > r.BytesBefore {
		return 0
	}
	return r.BytesBefore - r.BytesAfter
}

// Report summarizes a whole run. It is informational only and never
// gates the process exit status.
type Report struct {
	DryRun bool         `json:"dry_run" yaml:"dry_run"`
	Disks  []DiskResult `json:"disks" yaml:"disks"`

	Compacted  int   `json:"compacted" yaml:"compacted"`
	Planned    int   `json:"planned" yaml:"planned"`
	Skipped    int   `json:"skipped" yaml:"skipped"`
	Failed     int   `json:"failed" yaml:"failed"`
	BytesFreed int64 `json:"bytes_freed" yaml:"bytes_freed"`
}

func (r *Report) add(res DiskResult) {
	r.Disks = append(r.Disks, res)
	switch res.Status {
	case StatusCompacted:
		r.Compacted++
		r.BytesFreed += res.Freed()
	case StatusPlanned:
		r.Planned++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
}
