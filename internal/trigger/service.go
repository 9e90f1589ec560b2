// Package trigger turns schedule strings into dispatch passes. It owns the
// cron runtime and a per-task in-flight guard; the actual work happens in the
// dispatcher.
package trigger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"remindd/internal/dispatch"
	"remindd/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "America/New_York"
	// Timeout bounds one dispatch pass. <=0 means 5m.
	Timeout time.Duration
}

// Def is one registered schedule: a task type plus its schedule string and
// the params handed to every fire.
type Def struct {
	Name     string
	Type     dispatch.TaskType
	Schedule string
	Timeout  time.Duration
	Params   dispatch.Params
}

type scheduleDef struct {
	def      Def
	spec     string // normalized cron spec, @every for intervals
	entryID  cron.EntryID
	inFlight atomic.Bool
}

type Service struct {
	mu sync.Mutex

	cfg    Config
	log    logx.Logger
	disp   *dispatch.Dispatcher
	parser cron.Parser
	loc    *time.Location
	c      *cron.Cron
	defs   []*scheduleDef
}

func New(cfg Config, disp *dispatch.Dispatcher, log logx.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:  cfg,
		log:  log,
		disp: disp,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Add parses the schedule and registers the definition. Safe before or after
// Start; a definition added before Start is registered when the cron runtime
// comes up.
func (s *Service) Add(def Def) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("schedule name required")
	}
	ps, err := ParseSchedule(def.Schedule)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", def.Name, err)
	}
	spec := ps.Cron
	if ps.Kind == SpecInterval {
		spec = fmt.Sprintf("@every %s", ps.Every.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(def.Name)
	d := &scheduleDef{def: def, spec: spec}
	s.defs = append(s.defs, d)
	if s.c != nil {
		if err := s.addCronLocked(d); err != nil {
			return err
		}
	}
	s.log.Debug("schedule registered",
		logx.String("name", def.Name),
		logx.String("type", string(def.Type)),
		logx.String("spec", spec))
	return nil
}

// Remove drops a schedule by name. Unknown names are a no-op.
func (s *Service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
}

func (s *Service) removeLocked(name string) {
	for i, d := range s.defs {
		if d.def.Name != name {
			continue
		}
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		s.defs = append(s.defs[:i], s.defs[i+1:]...)
		return
	}
}

// Start brings up the cron runtime and registers all definitions.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, d := range s.defs {
		if err := s.addCronLocked(d); err != nil {
			s.log.Error("schedule register failed",
				logx.String("name", d.def.Name),
				logx.String("spec", d.spec),
				logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("trigger started", logx.String("tz", loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops the cron runtime and waits for in-flight fires, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("trigger stopped", logx.Duration("took", time.Since(start)))
}

// Apply swaps config at runtime. A timezone change restarts the cron runtime
// so local-time specs fire in the new location.
func (s *Service) Apply(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if s.c == nil {
		return
	}
	if oldTZ != strings.TrimSpace(cfg.Timezone) {
		s.restartLocked()
	}
}

// Entries returns name, spec and next fire time per registered schedule.
func (s *Service) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryInfo, 0, len(s.defs))
	for _, d := range s.defs {
		info := EntryInfo{Name: d.def.Name, Type: d.def.Type, Spec: d.spec}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	return out
}

type EntryInfo struct {
	Name string
	Type dispatch.TaskType
	Spec string
	Next time.Time
	Prev time.Time
}

// RunNow fires one schedule immediately, outside its cadence. Used by the
// maintenance surface and tests.
func (s *Service) RunNow(ctx context.Context, name string) (dispatch.Result, error) {
	s.mu.Lock()
	var found *scheduleDef
	for _, d := range s.defs {
		if d.def.Name == name {
			found = d
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return dispatch.Result{}, fmt.Errorf("unknown schedule %q", name)
	}
	now := time.Now()
	return s.fire(ctx, found, now, now)
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	eid, err := s.c.AddFunc(d.spec, func() {
		// A slow pass must not stack; skip this fire if the previous one is
		// still running.
		if !d.inFlight.CompareAndSwap(false, true) {
			s.log.Warn("schedule overlap skipped", logx.String("name", d.def.Name))
			return
		}
		defer d.inFlight.Store(false)

		scheduled := time.Now()
		s.mu.Lock()
		if s.c != nil && d.entryID != 0 {
			if prev := s.c.Entry(d.entryID).Prev; !prev.IsZero() {
				scheduled = prev
			}
		}
		s.mu.Unlock()

		if _, err := s.fire(context.Background(), d, scheduled, time.Now()); err != nil {
			s.log.Error("dispatch failed", logx.String("name", d.def.Name), logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", d.def.Name, err)
	}
	d.entryID = eid
	return nil
}

func (s *Service) fire(ctx context.Context, d *scheduleDef, scheduled, execution time.Time) (dispatch.Result, error) {
	s.mu.Lock()
	tz := s.cfg.Timezone
	timeout := d.def.Timeout
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	s.mu.Unlock()

	tc, err := dispatch.NewContext(d.def.Type, uuid.NewString(), d.def.Name, scheduled, execution, tz, d.def.Params)
	if err != nil {
		return dispatch.Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.disp.Run(ctx, tc), nil
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, d := range s.defs {
		d.entryID = 0
		if err := s.addCronLocked(d); err != nil {
			s.log.Error("schedule register failed", logx.String("name", d.def.Name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("trigger restarted", logx.String("tz", loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using local", logx.String("tz", tz))
		return time.Local
	}
	return loc
}
