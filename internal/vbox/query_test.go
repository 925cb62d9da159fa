package vbox

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// fakeClient returns a Client whose runner replays canned output and
// records the arguments of every invocation.
func fakeClient(output string, err error) (*Client, *[][]string) {
	calls := &[][]string{}
	c := New("/usr/bin/VBoxManage")
	c.run = func(_ context.Context, path string, args ...string) (string, error) {
		*calls = append(*calls, append([]string{path}, args...))
		return output, err
	}
	return c, calls
}

func TestListVMs(t *testing.T) {
	out := `"alpine-build" {6a2f1c9e-0a8e-4f6d-9f7a-2b6f3c1d5e88}
"win10 test" {b1d20c44-91f7-4c43-b7a0-77f08f26a4de}
`
	c, calls := fakeClient(out, nil)

	vms, err := c.ListVMs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"alpine-build", "win10 test"}
	if len(vms) != len(want) {
		t.Fatalf("expected %d VMs, got %d: %v", len(want), len(vms), vms)
	}
	for i := range want {
		if vms[i] != want[i] {
			t.Errorf("vms[%d] = %q, want %q", i, vms[i], want[i])
		}
	}

	if len(*calls) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(*calls))
	}
	got := strings.Join((*calls)[0], " ")
	if got != "/usr/bin/VBoxManage list vms" {
		t.Errorf("unexpected invocation: %s", got)
	}
}

func TestListRunningVMs_Empty(t *testing.T) {
	c, _ := fakeClient("", nil)

	vms, err := c.ListRunningVMs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vms) != 0 {
		t.Errorf("expected no VMs, got %v", vms)
	}
}

func TestListVMs_IgnoresNoise(t *testing.T) {
	// Headers and malformed lines must not produce names.
	out := `Oracle VM VirtualBox Command Line Management Interface
"broken-line-without-uuid"
"good" {0d5e88aa-0a8e-4f6d-9f7a-2b6f3c1d5e88}
`
	c, _ := fakeClient(out, nil)

	vms, err := c.ListVMs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vms) != 1 || vms[0] != "good" {
		t.Errorf("expected [good], got %v", vms)
	}
}

func TestMachineDiskPath(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name: "single vdi disk",
			output: `name="alpine-build"
VMState="poweroff"
"SATA-0-0"="/home/vm/VMs/alpine/alpine.vdi"
"SATA-ImageUUID-0-0"="0e7c1f5a-98d4-4a11-8b2f-6f1f0b4c2d3e"
`,
			want: "/home/vm/VMs/alpine/alpine.vdi",
		},
		{
			name: "uppercase extension",
			output: `"IDE-0-0"="/vms/OLD.VDI"
`,
			want: "/vms/OLD.VDI",
		},
		{
			name: "non matching extension skipped",
			output: `"SATA-0-0"="/vms/b/b.vmdk"
"SATA-1-0"="none"
`,
			want: "",
		},
		{
			name: "first of several disks wins",
			output: `"SATA-0-0"="/vms/a/first.vdi"
"SATA-1-0"="/vms/a/second.vdi"
`,
			want: "/vms/a/first.vdi",
		},
		{
			name:   "no storage lines",
			output: `VMState="running"` + "\n",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := fakeClient(tt.output, nil)
			got, err := c.MachineDiskPath(context.Background(), "whatever")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("MachineDiskPath = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMachineDiskUUID(t *testing.T) {
	out := `"SATA-0-0"="/vms/a/a.vdi"
"SATA-ImageUUID-0-0"="0e7c1f5a-98d4-4a11-8b2f-6f1f0b4c2d3e"
`
	c, _ := fakeClient(out, nil)

	got, err := c.MachineDiskUUID(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0e7c1f5a-98d4-4a11-8b2f-6f1f0b4c2d3e" {
		t.Errorf("unexpected UUID: %q", got)
	}
}

func TestMachineDiskUUID_Malformed(t *testing.T) {
	out := `"SATA-0-0"="/vms/a/a.vdi"
"SATA-ImageUUID-0-0"="not-a-uuid"
`
	c, _ := fakeClient(out, nil)

	got, err := c.MachineDiskUUID(context.Background(), "a")
	if err != nil {
		t.Fatalf("parse failures must not be errors, got: %v", err)
	}
	if got != "" {
		t.Errorf("expected unknown UUID, got %q", got)
	}
}

func TestMachinePowerState(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
		off    bool
	}{
		{"running", `VMState="running"` + "\n", "running", false},
		{"powered off", `VMState="poweroff"` + "\n", "poweroff", true},
		{"missing state", "name=\"x\"\n", PowerStateUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := fakeClient(tt.output, nil)
			got, err := c.MachinePowerState(context.Background(), "x")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("state = %q, want %q", got, tt.want)
			}
			if PoweredOff(got) != tt.off {
				t.Errorf("PoweredOff(%q) = %v, want %v", got, !tt.off, tt.off)
			}
		})
	}
}

func TestPowerControls(t *testing.T) {
	c, calls := fakeClient("", nil)
	ctx := context.Background()

	if err := c.PowerButton(ctx, "alpine-build"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.PowerOff(ctx, "alpine-build"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"/usr/bin/VBoxManage controlvm alpine-build acpipowerbutton",
		"/usr/bin/VBoxManage controlvm alpine-build poweroff",
	}
	if len(*calls) != len(want) {
		t.Fatalf("expected %d invocations, got %d", len(want), len(*calls))
	}
	for i := range want {
		if got := strings.Join((*calls)[i], " "); got != want[i] {
			t.Errorf("invocation %d: got %q, want %q", i, got, want[i])
		}
	}
}

func TestListVMs_RunnerError(t *testing.T) {
	c, _ := fakeClient("", fmt.Errorf("VBoxManage list vms: exec format error"))

	if _, err := c.ListVMs(context.Background()); err == nil {
		t.Fatal("expected error from failing runner")
	}
}

func TestResolve_ExplicitMissing(t *testing.T) {
	if _, err := Resolve("/nonexistent/VBoxManage"); err == nil {
		t.Fatal("expected error for missing explicit path")
	}
}

func TestResolve_InstallPathEnv(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/VBoxManage"
	if err := writeExecutable(path); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VBOX_INSTALL_PATH", dir)

	got, err := Resolve("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != path {
		t.Errorf("Resolve = %q, want %q", got, path)
	}
}
