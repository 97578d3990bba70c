package models

import (
	"time"
)

// JobStatus represents the lifecycle state of one order's PDF
type JobStatus string

const (
	JobStatusPending     JobStatus = "Pending"
	JobStatusDownloading JobStatus = "Downloading"
	JobStatusCompleted   JobStatus = "Completed"
	JobStatusFailed      JobStatus = "Failed"
)

// IsValid checks if the JobStatus is a known value
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusDownloading, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

func (s JobStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can move to target.
// Completed and Failed end an attempt but are revisited by retry and reconciliation.
func (s JobStatus) CanTransitionTo(target JobStatus) bool {
	switch s {
	case JobStatusPending:
		return target == JobStatusDownloading || target == JobStatusCompleted
	case JobStatusDownloading:
		return target == JobStatusCompleted || target == JobStatusFailed || target == JobStatusPending
	case JobStatusCompleted:
		// re-download, or file vanished
		return target == JobStatusDownloading || target == JobStatusPending
	case JobStatusFailed:
		return target == JobStatusPending || target == JobStatusDownloading || target == JobStatusCompleted
	}
	return false
}

// JobKey identifies a job: one order within one trip on one date
type JobKey struct {
	TripID      string `json:"tripId"`
	TripDate    string `json:"tripDate"`
	OrderNumber string `json:"orderNumber"`
}

func (k JobKey) String() string {
	return k.TripDate + "/" + k.TripID + "/" + k.OrderNumber
}

// PrintJob is the persisted status entry for one order's download/print lifecycle
type PrintJob struct {
	OrderNumber  string     `json:"orderNumber"`
	TripID       string     `json:"tripId"`
	TripDate     string     `json:"tripDate"` // yyyy-MM-dd
	Status       JobStatus  `json:"status"`
	FilePath     string     `json:"filePath,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	Attempts     int        `json:"attempts"`
	PrinterName  string     `json:"printerName,omitempty"`
	PrintedAt    *time.Time `json:"printedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// NewPrintJob creates a Pending job for key
func NewPrintJob(key JobKey, now time.Time) *PrintJob {
	return &PrintJob{
		OrderNumber: key.OrderNumber,
		TripID:      key.TripID,
		TripDate:    key.TripDate,
		Status:      JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Key returns the identity of the job
func (j *PrintJob) Key() JobKey {
	return JobKey{TripID: j.TripID, TripDate: j.TripDate, OrderNumber: j.OrderNumber}
}

// StartDownload marks the job as Downloading and counts the attempt
func (j *PrintJob) StartDownload(now time.Time) {
	j.Status = JobStatusDownloading
	j.ErrorMessage = ""
	j.Attempts++
	j.UpdatedAt = now
}

// Complete marks the job as Completed with the PDF at filePath
func (j *PrintJob) Complete(filePath string, now time.Time) {
	j.Status = JobStatusCompleted
	j.FilePath = filePath
	j.ErrorMessage = ""
	j.UpdatedAt = now
}

// Fail marks the job as Failed, keeping the message for display and retry
func (j *PrintJob) Fail(message string, now time.Time) {
	j.Status = JobStatusFailed
	j.ErrorMessage = message
	j.UpdatedAt = now
}

// Reset moves the job back to Pending
func (j *PrintJob) Reset(reason string, now time.Time) {
	j.Status = JobStatusPending
	j.FilePath = ""
	j.ErrorMessage = reason
	j.UpdatedAt = now
}

// MarkPrinted records a print accepted by the OS print subsystem
func (j *PrintJob) MarkPrinted(printerName string, now time.Time) {
	j.PrinterName = printerName
	j.PrintedAt = &now
	j.UpdatedAt = now
}

// JobStats aggregates counts by status
type JobStats struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Downloading int `json:"downloading"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
}

// Add counts one job
func (s *JobStats) Add(status JobStatus) {
	s.Total++
	switch status {
	case JobStatusPending:
		s.Pending++
	case JobStatusDownloading:
		s.Downloading++
	case JobStatusCompleted:
		s.Completed++
	case JobStatusFailed:
		s.Failed++
	}
}

// JobFilter selects jobs from the ledger. Empty fields match everything;
// From/To bound TripDate inclusively (yyyy-MM-dd compares lexically).
type JobFilter struct {
	TripID   string `json:"tripId,omitempty"`
	TripDate string `json:"tripDate,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
}

// Match reports whether j is selected by f
func (f JobFilter) Match(j *PrintJob) bool {
	if f.TripID != "" && j.TripID != f.TripID {
		return false
	}
	if f.TripDate != "" && j.TripDate != f.TripDate {
		return false
	}
	if f.From != "" && j.TripDate < f.From {
		return false
	}
	if f.To != "" && j.TripDate > f.To {
		return false
	}
	return true
}

// JobList is what listAllJobs returns
type JobList struct {
	Jobs  []PrintJob `json:"jobs"`
	Stats JobStats   `json:"stats"`
}
