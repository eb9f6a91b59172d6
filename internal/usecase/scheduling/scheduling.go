// Package scheduling runs configured skill tasks on cron schedules.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"agentgw/internal/infra/config"
	"agentgw/internal/usecase"
)

// jobTimeout bounds a single scheduled run.
const jobTimeout = 10 * time.Minute

// Scheduler runs configured jobs against the agent service.
type Scheduler struct {
	svc    *usecase.Service
	cron   *cron.Cron
	jobs   []config.JobConfig
	logDir string
	logger *slog.Logger
}

// New creates a scheduler for the given jobs. Disabled jobs are skipped at
// Start time.
func New(svc *usecase.Service, jobs []config.JobConfig, logDir string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		svc:    svc,
		cron:   cron.New(),
		jobs:   jobs,
		logDir: logDir,
		logger: logger,
	}
}

// Start registers all enabled jobs and begins the cron loop. Jobs with
// unparseable schedules are logged and skipped, never fatal.
func (s *Scheduler) Start() error {
	registered := 0
	for _, job := range s.jobs {
		if !job.Enabled {
			continue
		}
		job := job
		_, err := s.cron.AddFunc(normalizeSchedule(job.Schedule), func() {
			s.runJob(job)
		})
		if err != nil {
			s.logger.Error("invalid job schedule, skipping",
				"job", job.Name,
				"schedule", job.Schedule,
				"error", err,
			)
			continue
		}
		registered++
		s.logger.Info("scheduled job", "job", job.Name, "skill", job.Skill, "schedule", job.Schedule)
	}
	if registered == 0 {
		s.logger.Info("no scheduled jobs enabled")
		return nil
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runJob(job config.JobConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("running scheduled job", "job", job.Name, "skill", job.Skill)

	agent, err := s.svc.CreateAgent(ctx, job.Skill, usecase.AgentOptions{})
	if err != nil {
		s.logger.Error("scheduled job failed to create agent", "job", job.Name, "error", err)
		return
	}

	result, err := agent.RunToCompletion(ctx, job.Message)
	if err != nil {
		s.logger.Error("scheduled job failed", "job", job.Name, "error", err)
		return
	}

	s.logger.Info("scheduled job completed",
		"job", job.Name,
		"duration", time.Since(start).String(),
	)

	if job.LogOutput {
		s.writeJobLog(job.Name, result)
	}
}

// writeJobLog appends the job's output to a per-job file under the log dir.
func (s *Scheduler) writeJobLog(jobName, output string) {
	if s.logDir == "" {
		return
	}
	if err := os.MkdirAll(s.logDir, 0o755); err != nil {
		s.logger.Warn("failed to create job log dir", "dir", s.logDir, "error", err)
		return
	}
	path := filepath.Join(s.logDir, jobName+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Warn("failed to open job log", "path", path, "error", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "=== %s ===\n%s\n\n", time.Now().Format(time.RFC3339), output)
}

// normalizeSchedule accepts either a cron expression or a bare duration
// like "30m", which becomes an @every spec.
func normalizeSchedule(schedule string) string {
	if _, err := time.ParseDuration(schedule); err == nil {
		return "@every " + schedule
	}
	return schedule
}
