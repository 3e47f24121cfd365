package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/geo"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// StepStatus is the outcome of one pipeline step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	// StepDegraded completed with a fallback or partial result; the
	// job keeps going.
	StepDegraded StepStatus = "degraded"
	StepFailed   StepStatus = "failed"
)

// Step identifies one pipeline step as reported to job tracking.
type Step string

const (
	StepCountryDetection  Step = "country_detection"
	StepElevationDownload Step = "elevation_download"
	StepOSMFeatures       Step = "osm_features"
	StepHeightmap         Step = "heightmap"
	StepSurfaceMasks      Step = "surface_masks"
	StepSatelliteImagery  Step = "satellite_imagery"
	StepRoadProcessing    Step = "road_processing"
	StepFeatureExtraction Step = "feature_extraction"
	StepCoordTransform    Step = "coordinate_transform"
	StepMetadata          Step = "metadata"
	StepEnfusionProject   Step = "enfusion_project"
	StepSetupGuide        Step = "setup_guide"
	StepExportOrganized   Step = "export_organized"
)

// Steps lists the pipeline steps in execution order.
var Steps = []Step{
	StepCountryDetection,
	StepElevationDownload,
	StepOSMFeatures,
	StepHeightmap,
	StepSurfaceMasks,
	StepSatelliteImagery,
	StepRoadProcessing,
	StepFeatureExtraction,
	StepCoordTransform,
	StepMetadata,
	StepEnfusionProject,
	StepSetupGuide,
	StepExportOrganized,
}

// StepRecord is the tracked state of one step.
type StepRecord struct {
	Step       Step           `json:"step"`
	Status     StepStatus     `json:"status"`
	StartedAt  time.Time      `json:"startedAt,omitempty"`
	FinishedAt time.Time      `json:"finishedAt,omitempty"`
	Summary    map[string]any `json:"summary,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// LogEntry is one line of the job's activity log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Job tracks one generation run. All accessors are safe for concurrent
// use so a polling layer can read while the pipeline runs.
type Job struct {
	ID   uuid.UUID
	Name string
	AOI  *geo.AreaOfInterest

	mu     sync.Mutex
	status Status
	steps  []StepRecord
	log    []LogEntry
}

// NewJob creates a pending job over a validated area of interest.
func NewJob(name string, aoi *geo.AreaOfInterest) *Job {
	steps := make([]StepRecord, len(Steps))
	for i, s := range Steps {
		steps[i] = StepRecord{Step: s, Status: StepPending}
	}
	return &Job{
		ID:     uuid.New(),
		Name:   name,
		AOI:    aoi,
		status: StatusPending,
		steps:  steps,
	}
}

// Status returns the job's lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Progress returns the fraction of finished steps in [0, 1].
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	done := 0
	for _, s := range j.steps {
		if s.Status == StepCompleted || s.Status == StepDegraded {
			done++
		}
	}
	return float64(done) / float64(len(j.steps))
}

// StepRecords returns a snapshot of all step states in order.
func (j *Job) StepRecords() []StepRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]StepRecord(nil), j.steps...)
}

// Record returns the snapshot of one step.
func (j *Job) Record(step Step) (StepRecord, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, s := range j.steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepRecord{}, false
}

// Log returns a snapshot of the activity log.
func (j *Job) Log() []LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]LogEntry(nil), j.log...)
}

// Degraded lists the steps that finished degraded.
func (j *Job) Degraded() []Step {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []Step
	for _, s := range j.steps {
		if s.Status == StepDegraded {
			out = append(out, s.Step)
		}
	}
	return out
}

func (j *Job) setStatus(s Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = s
}

func (j *Job) logf(level, format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.log = append(j.log, LogEntry{
		Time:    time.Now(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
}

func (j *Job) startStep(step Step) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.steps {
		if j.steps[i].Step == step {
			j.steps[i].Status = StepRunning
			j.steps[i].StartedAt = time.Now()
			return
		}
	}
}

func (j *Job) finishStep(step Step, status StepStatus, summary map[string]any, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.steps {
		if j.steps[i].Step == step {
			j.steps[i].Status = status
			j.steps[i].FinishedAt = time.Now()
			j.steps[i].Summary = summary
			j.steps[i].Error = errMsg
			return
		}
	}
}
