package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"bdscan/internal/bdrom"
	"bdscan/internal/scan"
)

// terminalUI owns stderr while a scan runs: the progress bar and the error
// prompt share one lock so they never interleave.
type terminalUI struct {
	errOut      io.Writer
	in          *bufio.Reader
	interactive bool

	mu        sync.Mutex
	bar       *progressbar.ProgressBar
	continued bool
}

func newTerminalUI(errOut io.Writer, in io.Reader, interactive bool) *terminalUI {
	u := &terminalUI{errOut: errOut, interactive: interactive}
	if in != nil {
		u.in = bufio.NewReader(in)
	}
	return u
}

// onProgress renders bitrate snapshots. It is a no-op off a terminal.
func (u *terminalUI) onProgress(snap scan.Snapshot) {
	if !u.interactive {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.bar == nil {
		if snap.TotalBytes <= 0 {
			return
		}
		u.bar = progressbar.NewOptions64(snap.TotalBytes,
			progressbar.OptionSetWriter(u.errOut),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}
	desc := fmt.Sprintf("[%d/%d]", snap.FilesDone, snap.FilesTotal)
	if snap.CurrentFile != "" {
		desc += " " + snap.CurrentFile
	}
	u.bar.Describe(desc)
	_ = u.bar.Set64(snap.FinishedBytes + snap.CurrentFileBytes)
	if snap.Phase == scan.PhaseDone || snap.Phase == scan.PhaseCancelled {
		_ = u.bar.Finish()
		u.bar = nil
	}
}

// finish clears a bar left behind by an early return.
func (u *terminalUI) finish() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.bar != nil {
		_ = u.bar.Exit()
		u.bar = nil
	}
}

// policy asks on stderr what to do about each failed file. Answering "all"
// continues past every later failure without asking.
func (u *terminalUI) policy() bdrom.ErrorPolicy {
	ask := func(kind string) bdrom.DecisionFunc {
		return func(name string, err error) bdrom.Decision {
			return u.ask(kind, name, err)
		}
	}
	return bdrom.PolicyFuncs{
		Playlist: ask("playlist"),
		Clip:     ask("clip info"),
		Stream:   ask("stream file"),
	}
}

func (u *terminalUI) ask(kind, name string, err error) bdrom.Decision {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.continued || u.in == nil {
		return bdrom.Continue
	}
	if u.bar != nil {
		_ = u.bar.Clear()
	}
	warn := color.New(color.FgYellow, color.Bold)
	warn.Fprintf(u.errOut, "\n%s %s failed: ", kind, name)
	fmt.Fprintln(u.errOut, err)
	for {
		fmt.Fprint(u.errOut, "Continue? [Y]es / [n]o / [a]ll: ")
		line, readErr := u.in.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		switch answer {
		case "", "y", "yes":
			return bdrom.Continue
		case "a", "all":
			u.continued = true
			return bdrom.Continue
		case "n", "no":
			return bdrom.Abort
		}
		if readErr != nil {
			return bdrom.Continue
		}
	}
}
