package scheduler

// FileState is a DownloadFile's scheduling state, per spec.md §4.4/§8.
type FileState int

const (
	FileQueued FileState = iota
	FileDownloading
	FilePaused
	FileCompleted
	FileCancelled
	FileFailed
)

func (s FileState) String() string {
	switch s {
	case FileQueued:
		return "queued"
	case FileDownloading:
		return "downloading"
	case FilePaused:
		return "paused"
	case FileCompleted:
		return "completed"
	case FileCancelled:
		return "cancelled"
	case FileFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// File is spec.md §3's DownloadFile: one URL to retrieve into Dest.
// State is scheduler-owned and only ever mutated while the scheduler's
// lock is held. Written bytes (and the range-honoured flag) are updated
// by the worker transferring the file, outside the lock.
type File struct {
	URL            string
	ExpectedSize   int64
	Dest           string
	SupportsResume bool

	// RangeStart requests "bytes=RangeStart-" from the very first
	// attempt, independent of SupportsResume's after-a-failure retry
	// logic. Used by the fetcher to skip a self-extracting archive's
	// prefix in transit when the server advertises Range support,
	// rather than downloading it and discarding it after the fact.
	RangeStart int64

	// FullSize is the whole resource's size, independent of ExpectedSize
	// narrowing RangeStart might have applied. downloadFile restores
	// ExpectedSize from FullSize whenever the server turns out to ignore
	// the Range request and serves the whole body instead. Zero means
	// "same as ExpectedSize" (no narrowing was ever applied).
	FullSize int64

	written      int64
	state        FileState
	lastErr      error
	rangeHonored bool
}

// RangeHonored reports whether the server actually served the suffix
// requested via RangeStart (as opposed to ignoring it and returning the
// whole resource). Only meaningful once State is a terminal state.
func (f *File) RangeHonored() bool { return f.rangeHonored }

// Written returns the number of bytes durably written to Dest so far.
func (f *File) Written() int64 { return f.written }

// State returns the file's current scheduling state.
func (f *File) State() FileState { return f.state }

// Err returns the error that moved this file to FileFailed, if any.
func (f *File) Err() error { return f.lastErr }
