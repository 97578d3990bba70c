package store

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/logger"
	"github.com/xelth-com/eckprint/internal/models"
)

const (
	restartedReason = "agent restarted during download"
	abandonedReason = "download abandoned"
)

// JobStore is the persisted print job ledger plus the PDF tree it describes.
// The ledger file is a JSON array rewritten whole on every change; mu makes
// this store its single writer.
type JobStore struct {
	path    string
	pdfRoot string

	mu       sync.Mutex
	onChange func(models.PrintJob)
	inFlight func(models.JobKey) bool

	now func() time.Time
	log *zap.Logger
}

// OpenJobStore opens the ledger at path. Jobs left Downloading by a previous
// process are put back to Pending.
func OpenJobStore(path, pdfRoot string, log *zap.Logger) (*JobStore, error) {
	s := &JobStore{
		path:    path,
		pdfRoot: pdfRoot,
		now:     time.Now,
		log:     logger.OrNop(log).Named("jobstore"),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return nil, err
	}
	reset := 0
	for i := range jobs {
		if jobs[i].Status == models.JobStatusDownloading {
			jobs[i].Reset(restartedReason, s.now())
			reset++
		}
	}
	if reset > 0 {
		if err := s.save(jobs); err != nil {
			return nil, err
		}
		s.log.Warn("reset interrupted downloads", zap.Int("count", reset))
	}
	s.log.Info("job ledger opened", zap.String("path", path), zap.Int("jobs", len(jobs)))
	return s, nil
}

// OnChange registers fn to be called with every job the store persists
func (s *JobStore) OnChange(fn func(models.PrintJob)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// SetInFlight registers the check Reconcile uses to tell a running download
// from one abandoned in Downloading. Without it every Downloading job counts
// as running. fn is called with the store locked and must not call back.
func (s *JobStore) SetInFlight(fn func(models.JobKey) bool) {
	s.mu.Lock()
	s.inFlight = fn
	s.mu.Unlock()
}

// PDFPath returns the deterministic artifact path for key
func (s *JobStore) PDFPath(key models.JobKey) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return pdfPath(s.pdfRoot, key), nil
}

// WritePDF atomically replaces the artifact for key, creating parents
func (s *JobStore) WritePDF(key models.JobKey, data []byte) (string, error) {
	path, err := s.PDFPath(key)
	if err != nil {
		return "", err
	}
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// HasPDF reports whether the artifact for key is on disk
func (s *JobStore) HasPDF(key models.JobKey) bool {
	path, err := s.PDFPath(key)
	return err == nil && fileExists(path)
}

// Get returns the job for key
func (s *JobStore) Get(key models.JobKey) (models.PrintJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return models.PrintJob{}, err
	}
	if i := indexOf(jobs, key); i >= 0 {
		return jobs[i], nil
	}
	return models.PrintJob{}, apperr.New(apperr.KindNotFound, "no job for "+key.String())
}

// Update applies fn to the job for key, creating a Pending job first when
// none exists, and persists the result. If fn fails, or moves the job to a
// status its current one cannot reach, nothing is written.
func (s *JobStore) Update(key models.JobKey, fn func(job *models.PrintJob) error) (models.PrintJob, error) {
	if err := ValidateKey(key); err != nil {
		return models.PrintJob{}, err
	}

	s.mu.Lock()
	jobs, err := s.load()
	if err != nil {
		s.mu.Unlock()
		return models.PrintJob{}, err
	}
	i := indexOf(jobs, key)
	if i < 0 {
		jobs = append(jobs, *models.NewPrintJob(key, s.now()))
		i = len(jobs) - 1
	}
	prev := jobs[i].Status
	if err := fn(&jobs[i]); err != nil {
		s.mu.Unlock()
		return models.PrintJob{}, err
	}
	if err := checkTransition(prev, jobs[i].Status); err != nil {
		s.mu.Unlock()
		return models.PrintJob{}, err
	}
	if err := s.save(jobs); err != nil {
		s.mu.Unlock()
		return models.PrintJob{}, err
	}
	job, notify := jobs[i], s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify(job)
	}
	return job, nil
}

// checkTransition rejects a status change the job lifecycle does not allow.
// A job loaded with an unknown status may move anywhere valid.
func checkTransition(from, to models.JobStatus) error {
	if from == to {
		return nil
	}
	if !to.IsValid() {
		return apperr.New(apperr.KindInternal, "unknown job status "+to.String())
	}
	if from.IsValid() && !from.CanTransitionTo(to) {
		return apperr.New(apperr.KindInternal, "job cannot move from "+from.String()+" to "+to.String())
	}
	return nil
}

// Register makes sure a job exists for every key without touching existing ones
func (s *JobStore) Register(keys []models.JobKey) ([]models.PrintJob, error) {
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	jobs, err := s.load()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	var created []models.PrintJob
	for _, k := range keys {
		if indexOf(jobs, k) >= 0 {
			continue
		}
		job := models.NewPrintJob(k, s.now())
		jobs = append(jobs, *job)
		created = append(created, *job)
	}
	if len(created) > 0 {
		if err := s.save(jobs); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	notify := s.onChange
	s.mu.Unlock()

	s.notifyAll(notify, created)
	return created, nil
}

// Reconcile corrects every job against the PDF tree: Completed without a file
// goes back to Pending, Pending or Failed with a file becomes Completed.
// Downloading jobs still in flight are left alone; abandoned ones become
// Completed or Pending depending on the file. Returns the number corrected.
func (s *JobStore) Reconcile() (int, error) {
	s.mu.Lock()
	changed, err := s.reconcileLocked()
	notify := s.onChange
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	s.notifyAll(notify, changed)
	return len(changed), nil
}

func (s *JobStore) reconcileLocked() ([]models.PrintJob, error) {
	jobs, err := s.load()
	if err != nil {
		return nil, err
	}

	var changed []models.PrintJob
	now := s.now()
	for i := range jobs {
		job := &jobs[i]
		key := job.Key()
		if job.Status == models.JobStatusDownloading && (s.inFlight == nil || s.inFlight(key)) {
			continue
		}
		if ValidateKey(key) != nil {
			continue
		}
		path := pdfPath(s.pdfRoot, key)
		exists := fileExists(path)

		switch {
		case !job.Status.IsValid() && !exists:
			job.Reset("unknown status "+string(job.Status), now)
		case job.Status == models.JobStatusDownloading && !exists:
			job.Reset(abandonedReason, now)
		case job.Status == models.JobStatusCompleted && !exists:
			job.Reset("", now)
		case job.Status != models.JobStatusCompleted && exists:
			job.Complete(path, now)
		case job.Status == models.JobStatusCompleted && job.FilePath != path:
			job.FilePath = path
		default:
			continue
		}
		changed = append(changed, *job)
	}

	if len(changed) > 0 {
		if err := s.save(jobs); err != nil {
			return nil, err
		}
		s.log.Debug("ledger reconciled", zap.Int("corrected", len(changed)))
	}
	return changed, nil
}

// Query reconciles and returns the jobs matching filter, in ledger order
func (s *JobStore) Query(filter models.JobFilter) ([]models.PrintJob, error) {
	list, err := s.List(filter)
	if err != nil {
		return nil, err
	}
	return list.Jobs, nil
}

// Stats reconciles and counts the jobs matching filter by status
func (s *JobStore) Stats(filter models.JobFilter) (models.JobStats, error) {
	list, err := s.List(filter)
	if err != nil {
		return models.JobStats{}, err
	}
	return list.Stats, nil
}

// List reconciles and returns matching jobs with their stats
func (s *JobStore) List(filter models.JobFilter) (models.JobList, error) {
	s.mu.Lock()
	changed, err := s.reconcileLocked()
	if err != nil {
		s.mu.Unlock()
		return models.JobList{}, err
	}
	jobs, err := s.load()
	notify := s.onChange
	s.mu.Unlock()
	if err != nil {
		return models.JobList{}, err
	}
	s.notifyAll(notify, changed)

	list := models.JobList{Jobs: []models.PrintJob{}}
	for i := range jobs {
		if !filter.Match(&jobs[i]) {
			continue
		}
		list.Jobs = append(list.Jobs, jobs[i])
		list.Stats.Add(jobs[i].Status)
	}
	return list, nil
}

func (s *JobStore) notifyAll(fn func(models.PrintJob), jobs []models.PrintJob) {
	if fn == nil {
		return
	}
	for _, j := range jobs {
		fn(j)
	}
}

func (s *JobStore) load() ([]models.PrintJob, error) {
	var jobs []models.PrintJob
	if err := readJSON(s.path, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *JobStore) save(jobs []models.PrintJob) error {
	if jobs == nil {
		jobs = []models.PrintJob{}
	}
	return writeJSON(s.path, jobs)
}

func indexOf(jobs []models.PrintJob, key models.JobKey) int {
	for i := range jobs {
		if jobs[i].Key() == key {
			return i
		}
	}
	return -1
}

// RemovePDF deletes the artifact for key if present
func (s *JobStore) RemovePDF(key models.JobKey) error {
	path, err := s.PDFPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.KindIO, "failed to remove pdf", err)
	}
	return nil
}
