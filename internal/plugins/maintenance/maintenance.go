// Package maintenance runs blog housekeeping tasks (counter recounts, search
// reindexing, template cache flush, exports) and tracks when each last ran.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/modules"
)

// ID is the module id and the settings namespace of run timestamps.
const ID = "maintenance"

// ErrUnknownTask is returned for task ids nobody registered.
var ErrUnknownTask = errors.New("unknown maintenance task")

// Task is one housekeeping job.
type Task interface {
	ID() string
	Name() string
	// Run does the work for a blog and returns a message for the operator.
	Run(ctx context.Context, blogID string) (string, error)
}

// Settings stores run timestamps and intervals; blog.Service satisfies it.
type Settings interface {
	Settings(ctx context.Context, blogID, namespace string) (map[string]string, error)
	SetSetting(ctx context.Context, blogID, namespace, key, value string) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Result reports one run.
type Result struct {
	Task     string    `json:"task"`
	Message  string    `json:"message"`
	Ran      time.Time `json:"ran"`
	Duration string    `json:"duration"`
}

// Status describes a task for one blog.
type Status struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	LastRun  time.Time     `json:"last_run,omitzero"`
	Interval time.Duration `json:"interval"`
	Expired  bool          `json:"expired"`
}

// Plugin holds the task list.
type Plugin struct {
	settings  Settings
	clock     Clock
	tasks     []Task
	intervals map[string]time.Duration
	logger    *zap.Logger
}

// New builds the plugin with its tasks in display order.
func New(settings Settings, clock Clock, logger *zap.Logger, tasks ...Task) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{settings: settings, clock: clock, tasks: tasks, intervals: map[string]time.Duration{}, logger: logger}
}

// ID implements modules.Plugin.
func (p *Plugin) ID() string { return ID }

// Define implements modules.Plugin.
func (p *Plugin) Define() modules.Define {
	return modules.Define{
		Name:        "Maintenance",
		Desc:        "Housekeeping tasks for blogs",
		Author:      "inkpress",
		Version:     "1.0",
		Type:        modules.TypePlugin,
		Permissions: "admin",
		Priority:    30,
	}
}

// Default reminder intervals. Tasks missing here never expire.
var defaultIntervals = map[string]time.Duration{
	"exportblog": 7 * 24 * time.Hour,
	"indexposts": 30 * 24 * time.Hour,
}

// SetInterval overrides the reminder interval of a task; zero disables it.
func (p *Plugin) SetInterval(task string, d time.Duration) {
	p.intervals[task] = d
}

func (p *Plugin) interval(task string) time.Duration {
	if d, ok := p.intervals[task]; ok {
		return d
	}
	return defaultIntervals[task]
}

// Tasks returns the registered tasks.
func (p *Plugin) Tasks() []Task {
	return slices.Clone(p.tasks)
}

func (p *Plugin) task(id string) (Task, error) {
	for _, t := range p.tasks {
		if t.ID() == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTask, id)
}

// Run executes a task for a blog and records the run time on success.
func (p *Plugin) Run(ctx context.Context, blogID, taskID string) (Result, error) {
	t, err := p.task(taskID)
	if err != nil {
		return Result{}, err
	}
	start := p.clock.Now()
	msg, err := t.Run(ctx, blogID)
	if err != nil {
		p.logger.Warn("maintenance task failed", zap.String("task", taskID), zap.String("blog", blogID), zap.Error(err))
		return Result{}, fmt.Errorf("run %s: %w", taskID, err)
	}
	end := p.clock.Now()
	if err := p.settings.SetSetting(ctx, blogID, ID, "ts_"+taskID, strconv.FormatInt(end.Unix(), 10)); err != nil {
		return Result{}, fmt.Errorf("record %s run: %w", taskID, err)
	}
	p.logger.Info("maintenance task done", zap.String("task", taskID), zap.String("blog", blogID), zap.String("message", msg))
	return Result{Task: taskID, Message: msg, Ran: end, Duration: end.Sub(start).String()}, nil
}

// Statuses lists every task with its last run for a blog.
func (p *Plugin) Statuses(ctx context.Context, blogID string) ([]Status, error) {
	values, err := p.settings.Settings(ctx, blogID, ID)
	if err != nil {
		return nil, fmt.Errorf("load maintenance settings: %w", err)
	}
	now := p.clock.Now()
	out := make([]Status, 0, len(p.tasks))
	for _, t := range p.tasks {
		st := Status{ID: t.ID(), Name: t.Name(), Interval: p.interval(t.ID())}
		if sec, err := strconv.ParseInt(values["ts_"+t.ID()], 10, 64); err == nil {
			st.LastRun = time.Unix(sec, 0).UTC()
		}
		st.Expired = st.Interval > 0 && (st.LastRun.IsZero() || now.Sub(st.LastRun) >= st.Interval)
		out = append(out, st)
	}
	return out, nil
}

// Expired lists the tasks whose reminder interval has elapsed.
func (p *Plugin) Expired(ctx context.Context, blogID string) ([]Status, error) {
	all, err := p.Statuses(ctx, blogID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(s Status) bool { return !s.Expired }), nil
}

var _ Settings = (*blog.Service)(nil)
