package background

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"badgerland/internal/metrics"
	"badgerland/internal/models"
	"badgerland/internal/services"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobBusy    = errors.New("job is already running")
)

// Runner is one batch job. now is the instant the run is considered to happen at.
type Runner interface {
	Run(ctx context.Context, now time.Time) (*models.JobReport, error)
}

// Config controls when each job fires, in Location.
type Config struct {
	Location         *time.Location
	OverageBillingAt ClockTime
	AutoPickupsAt    ClockTime
	DispatchInterval time.Duration
	RunTimeout       time.Duration
}

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   uint
	Minute uint
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return ClockTime{Hour: uint(t.Hour()), Minute: uint(t.Minute())}, nil
}

// JobStatus is what the admin jobs endpoint shows for each job.
type JobStatus struct {
	Name       string            `json:"name"`
	NextRun    *time.Time        `json:"next_run,omitempty"`
	LastReport *models.JobReport `json:"last_report,omitempty"`
}

// JobScheduler runs the billing, pickup and dispatch jobs on their schedules.
// When a distributed locker is configured only one replica runs each firing.
type JobScheduler struct {
	scheduler gocron.Scheduler
	cfg       Config
	runners   map[string]Runner
	locker    gocron.Locker
	archive   services.ReportArchiver
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	jobJobs map[string]gocron.Job
	running map[string]*sync.Mutex
	last    map[string]*models.JobReport
	mu      sync.RWMutex
}

// NewJobScheduler registers the known runners. locker and archive may be nil.
func NewJobScheduler(cfg Config, runners map[string]Runner, locker gocron.Locker,
	archive services.ReportArchiver, m *metrics.Metrics, logger *zap.Logger) (*JobScheduler, error) {

	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}

	opts := []gocron.SchedulerOption{
		gocron.WithLocation(cfg.Location),
		gocron.WithLogger(zapAdapter{logger.Sugar()}),
		gocron.WithStopTimeout(cfg.RunTimeout),
	}
	if locker != nil {
		opts = append(opts, gocron.WithDistributedLocker(locker))
	}
	scheduler, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	js := &JobScheduler{
		scheduler: scheduler,
		cfg:       cfg,
		runners:   runners,
		locker:    locker,
		archive:   archive,
		metrics:   m,
		logger:    logger.With(zap.String("component", "scheduler")),
		now:       func() time.Time { return time.Now().In(cfg.Location) },
		ctx:       ctx,
		cancel:    cancel,
		jobJobs:   make(map[string]gocron.Job),
		running:   make(map[string]*sync.Mutex),
		last:      make(map[string]*models.JobReport),
	}
	for name := range runners {
		js.running[name] = &sync.Mutex{}
	}

	if err := js.registerJobs(); err != nil {
		_ = scheduler.Shutdown()
		cancel()
		return nil, err
	}
	return js, nil
}

func (js *JobScheduler) definition(name string) (gocron.JobDefinition, bool) {
	switch name {
	case models.JobOverageBilling:
		at := js.cfg.OverageBillingAt
		// Last day of every month.
		return gocron.MonthlyJob(1, gocron.NewDaysOfTheMonth(-1), gocron.NewAtTimes(gocron.NewAtTime(at.Hour, at.Minute, 0))), true
	case models.JobAutoPickups:
		at := js.cfg.AutoPickupsAt
		return gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(at.Hour, at.Minute, 0))), true
	case models.JobNotificationDispatch:
		return gocron.DurationJob(js.cfg.DispatchInterval), true
	default:
		return nil, false
	}
}

func (js *JobScheduler) registerJobs() error {
	for name := range js.runners {
		def, ok := js.definition(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownJob, name)
		}
		job, err := js.scheduler.NewJob(
			def,
			gocron.NewTask(js.scheduled, name),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		js.jobJobs[name] = job
	}
	js.logger.Info("registered background jobs", zap.Int("count", len(js.jobJobs)))
	return nil
}

func (js *JobScheduler) Start() {
	js.logger.Info("starting background job scheduler")
	js.scheduler.Start()
}

// Stop cancels running jobs and waits for them to return.
func (js *JobScheduler) Stop() error {
	js.logger.Info("stopping background job scheduler")
	js.cancel()
	return js.scheduler.Shutdown()
}

// scheduled is the gocron task. The distributed lock, if any, is already held.
func (js *JobScheduler) scheduled(name string) {
	running := js.running[name]
	if !running.TryLock() {
		js.logger.Warn("previous run still in progress, skipping", zap.String("job", name))
		return
	}
	defer running.Unlock()

	ctx, cancel := context.WithTimeout(js.ctx, js.cfg.RunTimeout)
	defer cancel()
	_, _ = js.execute(ctx, name)
}

// RunNow runs a job immediately and returns its report. It takes the same
// locks as a scheduled firing, so it never overlaps one.
func (js *JobScheduler) RunNow(ctx context.Context, name string) (*models.JobReport, error) {
	running, ok := js.running[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !running.TryLock() {
		return nil, ErrJobBusy
	}
	defer running.Unlock()

	if js.locker != nil {
		lock, err := js.locker.Lock(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrJobBusy, err)
		}
		defer func() {
			if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				js.logger.Warn("releasing job lock failed", zap.String("job", name), zap.Error(err))
			}
		}()
	}
	return js.execute(ctx, name)
}

func (js *JobScheduler) execute(ctx context.Context, name string) (*models.JobReport, error) {
	log := js.logger.With(zap.String("job", name))
	log.Info("job started")

	report, err := js.runners[name].Run(ctx, js.now())
	js.metrics.ObserveJob(report, err)
	if err != nil {
		log.Error("job failed", zap.Error(err))
	} else {
		log.Info("job finished",
			zap.Int("processed", report.Processed),
			zap.Int("created", report.Created),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
	}

	if report != nil {
		js.mu.Lock()
		js.last[name] = report
		js.mu.Unlock()

		if js.archive != nil {
			if object, aerr := js.archive.Archive(context.WithoutCancel(ctx), report); aerr != nil {
				log.Warn("archiving job report failed", zap.Error(aerr))
			} else {
				log.Debug("job report archived", zap.String("object", object))
			}
		}
	}
	return report, err
}

// GetJobStatus returns every registered job with its next firing and last report.
func (js *JobScheduler) GetJobStatus() []JobStatus {
	js.mu.RLock()
	defer js.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(js.jobJobs))
	for name, job := range js.jobJobs {
		status := JobStatus{Name: name, LastReport: js.last[name]}
		if next, err := job.NextRun(); err == nil && !next.IsZero() {
			status.NextRun = &next
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// zapAdapter lets gocron log through zap.
type zapAdapter struct {
	*zap.SugaredLogger
}

func (z zapAdapter) Debug(msg string, args ...any) { z.Debugw(msg, args...) }
func (z zapAdapter) Info(msg string, args ...any)  { z.Infow(msg, args...) }
func (z zapAdapter) Warn(msg string, args ...any)  { z.Warnw(msg, args...) }
func (z zapAdapter) Error(msg string, args ...any) { z.Errorw(msg, args...) }
