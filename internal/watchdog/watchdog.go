// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package watchdog terminates the process when a known inspection or
// tampering tool is running on the machine.
package watchdog

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// DefaultInterval is the pause between two process scans.
const DefaultInterval = time.Second

// DefaultBlacklist lists the tools that end the process when seen.
var DefaultBlacklist = []string{
	"dnspy", "ilspy", "reflector", "dotpeek", "de4dot", "fiddler",
	"wireshark", "ida", "ollydbg", "x32dbg", "x64dbg", "cheatengine",
}

// ProcessLister enumerates the names of running processes.
type ProcessLister interface {
	ProcessNames(ctx context.Context) ([]string, error)
}

// SystemLister lists processes through gopsutil.
type SystemLister struct{}

// ProcessNames returns the names of all processes it can read. Processes
// that vanish or deny access while being read are skipped.
func (SystemLister) ProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// normalise lower-cases a process name and strips a trailing ".exe".
func normalise(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".exe")
}

// Detect reports the first process name that matches an entry of blacklist
// exactly, ignoring case and a ".exe" suffix.
func Detect(names, blacklist []string) (string, bool) {
	deny := make(map[string]struct{}, len(blacklist))
	for _, b := range blacklist {
		deny[normalise(b)] = struct{}{}
	}
	for _, n := range names {
		if _, ok := deny[normalise(n)]; ok {
			return n, true
		}
	}
	return "", false
}

// Watchdog scans the process list on a fixed interval.
type Watchdog struct {
	Lister    ProcessLister
	Blacklist []string
	Interval  time.Duration
	// Exit ends the process. It defaults to os.Exit.
	Exit func(code int)

	startOnce sync.Once
}

// New returns a Watchdog with the gopsutil lister and the default blacklist.
func New(interval time.Duration) *Watchdog {
	return &Watchdog{
		Lister:    SystemLister{},
		Blacklist: DefaultBlacklist,
		Interval:  interval,
	}
}

// Start launches the scanning goroutine. It runs for the life of the process
// and has no stop method; later calls do nothing. On a match the process
// exits with status 0 and prints nothing.
func (w *Watchdog) Start() {
	w.startOnce.Do(func() {
		go w.loop()
	})
}

func (w *Watchdog) loop() {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	exit := w.Exit
	if exit == nil {
		exit = os.Exit
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if w.scan() {
			exit(0)
			return
		}
		<-ticker.C
	}
}

// scan performs one enumeration. Enumeration errors count as a clean scan.
func (w *Watchdog) scan() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	names, err := w.Lister.ProcessNames(ctx)
	if err != nil {
		return false
	}
	_, found := Detect(names, w.Blacklist)
	return found
}
