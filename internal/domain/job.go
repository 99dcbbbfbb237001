package domain

import "time"

// JobStage enumerates pipeline lifecycle states.
type JobStage string

const (
	StagePending     JobStage = "pending"
	StageAnalyzing   JobStage = "analyzing"
	StageResearching JobStage = "researching"
	StageGenerating  JobStage = "generating"
	StageReady       JobStage = "ready"
	StageError       JobStage = "error"
	StageCancelled   JobStage = "cancelled"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s JobStage) Terminal() bool {
	switch s {
	case StageReady, StageError, StageCancelled:
		return true
	}
	return false
}

// transitions lists the legal forward edges of the pipeline. Error and
// cancelled are reachable from every non-terminal state and are handled
// separately in CanTransition.
var transitions = map[JobStage]JobStage{
	StagePending:     StageAnalyzing,
	StageAnalyzing:   StageResearching,
	StageResearching: StageGenerating,
	StageGenerating:  StageReady,
}

// CanTransition reports whether a job may move from one stage to another.
func CanTransition(from, to JobStage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageError || to == StageCancelled {
		return true
	}
	return transitions[from] == to
}

// StageProgress returns the progress value a job reports when it enters the
// given stage. These are coarse UX signals; monotonicity is the only hard
// guarantee.
func StageProgress(s JobStage) int {
	switch s {
	case StageAnalyzing:
		return 10
	case StageResearching:
		return 40
	case StageGenerating:
		return 70
	case StageReady:
		return 100
	}
	return 0
}

// ErrorKind identifies which part of the pipeline produced a job-level error.
type ErrorKind string

const (
	ErrKindVisionFailure  ErrorKind = "vision_failure"
	ErrKindContentFailure ErrorKind = "content_failure"
	ErrKindTimeout        ErrorKind = "timeout"
)

// JobError is the terminal error recorded on a failed job.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ListingResult accumulates stage outputs as the pipeline advances. Fields are
// attached once and never cleared.
type ListingResult struct {
	Vision  *VisionResult   `json:"vision,omitempty"`
	Market  *MarketAnalysis `json:"market,omitempty"`
	Content *ListingContent `json:"content,omitempty"`
}

// Job encapsulates the lifecycle of one image-to-listing request.
type Job struct {
	ID             string
	Stage          JobStage
	Progress       int
	Message        string
	Error          *JobError
	Result         ListingResult
	ImageKey       string
	SourceFilename string
	Locale         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a deep copy so store reads hand out snapshots rather than
// aliased pointers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.Error != nil {
		errCopy := *j.Error
		out.Error = &errCopy
	}
	out.Result.Vision = j.Result.Vision.Clone()
	out.Result.Market = j.Result.Market.Clone()
	out.Result.Content = j.Result.Content.Clone()
	return &out
}

// JobUpdate describes one atomic mutation applied by the store. Nil fields are
// left untouched; stage changes are validated against the state machine and
// progress never decreases.
type JobUpdate struct {
	Stage    *JobStage
	Progress *int
	Message  *string
	Error    *JobError
	Vision   *VisionResult
	Market   *MarketAnalysis
	Content  *ListingContent
}

// Apply validates and mutates the job in place. Callers hold whatever lock
// guards the job.
func (j *Job) Apply(u JobUpdate, now time.Time) error {
	if j.Stage.Terminal() {
		return ErrInvalidTransition
	}
	if u.Stage != nil && !CanTransition(j.Stage, *u.Stage) {
		return ErrInvalidTransition
	}
	if u.Stage != nil {
		j.Stage = *u.Stage
	}
	if u.Progress != nil && *u.Progress > j.Progress {
		j.Progress = *u.Progress
	}
	if u.Message != nil {
		j.Message = *u.Message
	}
	if u.Error != nil {
		errCopy := *u.Error
		j.Error = &errCopy
	}
	if u.Vision != nil {
		j.Result.Vision = u.Vision.Clone()
	}
	if u.Market != nil {
		j.Result.Market = u.Market.Clone()
	}
	if u.Content != nil {
		j.Result.Content = u.Content.Clone()
	}
	j.UpdatedAt = now
	return nil
}
