package vbox

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// PowerStateUnknown is reported when VMState can't be extracted from the
// showvminfo output. Callers must treat it as "not powered off".
const PowerStateUnknown = "unknown"

// DiskExtension is the only disk container format this tool operates on.
// Machines whose disks use any other format are silently skipped.
const DiskExtension = ".vdi"

var (
	// quotedName extracts the machine name from `"name" {uuid}` lines
	// produced by `VBoxManage list vms`.
	quotedName = regexp.MustCompile(`^"(.+)" \{[0-9a-fA-F-]+\}$`)

	// kvLine matches the key="value" lines of --machinereadable output.
	// Keys for storage attachments are themselves quoted.
	kvLine = regexp.MustCompile(`^"?([^"=]+)"?="(.*)"$`)
)

// ListVMs returns the names of all registered machines.
func (c *Client) ListVMs(ctx context.Context) ([]string, error) {
	return c.listNames(ctx, "vms")
}

// ListRunningVMs returns the names of all currently running machines.
func (c *Client) ListRunningVMs(ctx context.Context) ([]string, error) {
	return c.listNames(ctx, "runningvms")
}

func (c *Client) listNames(ctx context.Context, what string) ([]string, error) {
	out, err := c.run(ctx, c.path, "list", what)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, line := range strings.Split(out, "\n") {
		m := quotedName.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		names = append(names, m[1])
	}
	return names, nil
}

// MachineDiskPath returns the path of the machine's disk image, or ""
// when the machine has no attachment with the supported disk extension.
//
// Machines are assumed to have at most one such disk; when several are
// attached only the first reported by VBoxManage is used.
func (c *Client) MachineDiskPath(ctx context.Context, name string) (string, error) {
	pairs, err := c.showVMInfo(ctx, name)
	if err != nil {
		return "", err
	}

	for _, kv := range pairs {
		if strings.HasSuffix(strings.ToLower(kv.value), DiskExtension) {
			return kv.value, nil
		}
	}
	return "", nil
}

// MachineDiskUUID returns the image UUID of the machine's disk, or ""
// when it can't be determined. The UUID is informational only; it is
// reported so the operator can confirm the compactor preserved it.
//
// showvminfo pairs each storage attachment key like "SATA-0-0" with an
// "SATA-ImageUUID-0-0" key carrying the image UUID.
func (c *Client) MachineDiskUUID(ctx context.Context, name string) (string, error) {
	pairs, err := c.showVMInfo(ctx, name)
	if err != nil {
		return "", err
	}

	diskKey := ""
	for _, kv := range pairs {
		if strings.HasSuffix(strings.ToLower(kv.value), DiskExtension) {
			diskKey = kv.key
			break
		}
	}
	if diskKey == "" {
		return "", nil
	}

	bus, slot, ok := strings.Cut(diskKey, "-")
	if !ok {
		return "", nil
	}
	uuidKey := bus + "-ImageUUID-" + slot

	for _, kv := range pairs {
		if kv.key != uuidKey {
			continue
		}
		id, err := uuid.Parse(kv.value)
		if err != nil {
			// Malformed UUID in the output; report unknown, not an error.
			return "", nil
		}
		return id.String(), nil
	}
	return "", nil
}

// MachinePowerState returns the machine's reported power state, for
// example "running" or "poweroff". Any output that doesn't contain a
// VMState line yields PowerStateUnknown.
func (c *Client) MachinePowerState(ctx context.Context, name string) (string, error) {
	pairs, err := c.showVMInfo(ctx, name)
	if err != nil {
		return PowerStateUnknown, err
	}

	for _, kv := range pairs {
		if kv.key == "VMState" {
			return kv.value, nil
		}
	}
	return PowerStateUnknown, nil
}

// PoweredOff reports whether a power state string means the machine is
// fully powered off.
func PoweredOff(state string) bool {
	return strings.Contains(state, "poweroff")
}

// PowerButton sends the machine a graceful ACPI power-button signal.
func (c *Client) PowerButton(ctx context.Context, name string) error {
	_, err := c.run(ctx, c.path, "controlvm", name, "acpipowerbutton")
	return err
}

// PowerOff forcibly powers the machine off.
func (c *Client) PowerOff(ctx context.Context, name string) error {
	_, err := c.run(ctx, c.path, "controlvm", name, "poweroff")
	return err
}

type keyValue struct {
	key   string
	value string
}

// showVMInfo runs `showvminfo --machinereadable` and returns the parsed
// key="value" pairs in output order. Lines that don't match the pattern
// are ignored.
func (c *Client) showVMInfo(ctx context.Context, name string) ([]keyValue, error) {
	out, err := c.run(ctx, c.path, "showvminfo", name, "--machinereadable")
	if err != nil {
		return nil, err
	}

	var pairs []keyValue
	for _, line := range strings.Split(out, "\n") {
		m := kvLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		pairs = append(pairs, keyValue{key: m[1], value: m[2]})
	}
	return pairs, nil
}
