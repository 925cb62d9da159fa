package compact

import "log"

// Gate decides whether a mutating action may execute. It is injected
// once at the top of the workflow; every mutation asks it first, so
// dry-run is a property of the gate, not of scattered flag checks.
type Gate func(action string) bool

// AllowAll executes every action. The normal-run gate.
func AllowAll(string) bool { return true }

// DryRun reports each action and denies it. The full control path is
// still walked, so a dry run enumerates every disk and every mutation
// that a real run would perform.
func DryRun(action string) bool {
	log.Printf("dry-run: would %s", action)
	return false
}
