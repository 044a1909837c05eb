package scan

import "time"

// Phase is the orchestrator state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStructure
	PhaseBitrate
	PhaseDone
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseStructure:
		return "structure"
	case PhaseBitrate:
		return "bitrate"
	case PhaseDone:
		return "done"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// Snapshot is a point-in-time view of a running scan.
type Snapshot struct {
	ScanID      string
	Phase       Phase
	CurrentFile string

	FinishedBytes    int64
	CurrentFileBytes int64
	TotalBytes       int64

	FilesDone  int
	FilesTotal int

	Elapsed time.Duration
}

// Progress is the completed fraction, 0..1.
func (s Snapshot) Progress() float64 {
	if s.TotalBytes <= 0 {
		if s.Phase == PhaseDone {
			return 1
		}
		return 0
	}
	p := float64(s.FinishedBytes+s.CurrentFileBytes) / float64(s.TotalBytes)
	return min(max(p, 0), 1)
}

// Remaining extrapolates the time left from the elapsed time and progress.
func (s Snapshot) Remaining() time.Duration {
	p := s.Progress()
	if p <= 0 || p >= 1 {
		return 0
	}
	return time.Duration(float64(s.Elapsed)/p) - s.Elapsed
}
