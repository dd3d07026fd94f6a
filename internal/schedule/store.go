// Package schedule is the scheduling backend: probe registrations, run
// history, one-shot runs and the periodic scheduler loop.
package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/docker/go-units"

	"github.com/jandubois/rsvctl/internal/db"
	"github.com/jandubois/rsvctl/internal/envdirective"
	"github.com/jandubois/rsvctl/internal/executor"
)

// ErrNotRegistered is returned when no registration exists for a metric and endpoint.
var ErrNotRegistered = errors.New("not registered")

// Status formats understood by QueryStatus.
const (
	FormatBrief = "brief"
	FormatLong  = "long"
	FormatFull  = "full"
	FormatLog   = "log"
	FormatOut   = "out"
	FormatErr   = "err"
)

// logLimit is the number of runs shown by the log format.
const logLimit = 10

// Registration is an enabled metric bound to one endpoint.
type Registration struct {
	Metric     string
	Endpoint   string
	Executable string
	// Args is the display form of ArgList.
	Args         string
	ArgList      []string
	Env          map[string]envdirective.Directive
	Owner        string
	Interval     time.Duration
	RegisteredAt time.Time
}

// Invocation returns the process invocation for the registration.
func (r *Registration) Invocation() executor.Invocation {
	args := append([]string{"--uri", r.Endpoint}, r.ArgList...)
	return executor.Invocation{
		Executable: r.Executable,
		Args:       args,
		Env:        r.Env,
	}
}

// Run is one recorded execution of a registration.
type Run struct {
	ID        int64
	Metric    string
	Endpoint  string
	ExitCode  int
	Stdout    string
	Stderr    string
	Duration  time.Duration
	OneShot   bool
	StartedAt time.Time
}

// Runner executes metric invocations.
type Runner interface {
	Run(ctx context.Context, inv executor.Invocation) (*executor.Result, error)
}

// Store persists registrations and runs in SQLite.
type Store struct {
	db     *db.DB
	runner Runner
	now    func() time.Time
}

// Open opens the store at path, applying pending migrations.
func Open(ctx context.Context, path string, runner Runner) (*Store, error) {
	database, err := db.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewStore(database, runner), nil
}

// NewStore wraps an already migrated database.
func NewStore(database *db.DB, runner Runner) *Store {
	return &Store{db: database, runner: runner, now: time.Now}
}

// Close closes the underlying database.
func (s *Store) Close() {
	s.db.Close()
}

// IsRegistered reports whether metric is registered against endpoint.
func (s *Store) IsRegistered(ctx context.Context, metric, endpoint string) (bool, error) {
	var n int
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM registrations WHERE metric = ? AND endpoint = ?
	`, metric, endpoint).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query registration: %w", err)
	}
	return n > 0, nil
}

// Register stores reg, replacing any previous registration for the same
// metric and endpoint.
func (s *Store) Register(ctx context.Context, reg *Registration) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT OR REPLACE INTO registrations
			(metric, endpoint, executable, args, arg_list, environment, owner, interval_seconds, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		reg.Metric, reg.Endpoint, reg.Executable, reg.Args,
		db.JSONStringArray(reg.ArgList),
		db.JSON[map[string]envdirective.Directive]{V: reg.Env},
		reg.Owner, int64(reg.Interval/time.Second), db.FormatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("register %s on %s: %w", reg.Metric, reg.Endpoint, err)
	}
	slog.Info("registered metric", "metric", reg.Metric, "endpoint", reg.Endpoint, "owner", reg.Owner)
	return nil
}

// Unregister removes the registration. Removing a missing registration is not an error.
func (s *Store) Unregister(ctx context.Context, metric, endpoint string) error {
	res, err := s.db.DB().ExecContext(ctx, `
		DELETE FROM registrations WHERE metric = ? AND endpoint = ?
	`, metric, endpoint)
	if err != nil {
		return fmt.Errorf("unregister %s on %s: %w", metric, endpoint, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.Debug("metric was not registered", "metric", metric, "endpoint", endpoint)
	} else {
		slog.Info("unregistered metric", "metric", metric, "endpoint", endpoint)
	}
	return nil
}

const registrationColumns = `
	metric, endpoint, executable, args, arg_list, environment, owner, interval_seconds, registered_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*Registration, error) {
	var reg Registration
	var argList db.JSONStringArray
	var env db.JSON[map[string]envdirective.Directive]
	var interval int64
	var registeredAt db.NullTime
	err := row.Scan(&reg.Metric, &reg.Endpoint, &reg.Executable, &reg.Args,
		&argList, &env, &reg.Owner, &interval, &registeredAt)
	if err != nil {
		return nil, err
	}
	reg.ArgList = argList
	reg.Env = env.V
	reg.Interval = time.Duration(interval) * time.Second
	reg.RegisteredAt = registeredAt.Time
	return &reg, nil
}

// Registration returns the registration for metric and endpoint.
func (s *Store) Registration(ctx context.Context, metric, endpoint string) (*Registration, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT `+registrationColumns+` FROM registrations WHERE metric = ? AND endpoint = ?
	`, metric, endpoint)
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s on %s: %w", metric, endpoint, ErrNotRegistered)
	}
	if err != nil {
		return nil, fmt.Errorf("query registration: %w", err)
	}
	return reg, nil
}

// Registrations lists all registrations ordered by metric and endpoint.
func (s *Store) Registrations(ctx context.Context) ([]*Registration, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+registrationColumns+` FROM registrations ORDER BY metric, endpoint
	`)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var regs []*Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// RecordRun stores a finished run.
func (s *Store) RecordRun(ctx context.Context, run *Run) error {
	res, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO job_runs (metric, endpoint, exit_code, stdout, stderr, duration_ms, one_shot, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.Metric, run.Endpoint, run.ExitCode, run.Stdout, run.Stderr,
		run.Duration.Milliseconds(), run.OneShot, db.FormatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	run.ID, _ = res.LastInsertId()
	return nil
}

// LastRuns returns up to limit runs for metric and endpoint, newest first.
func (s *Store) LastRuns(ctx context.Context, metric, endpoint string, limit int) ([]*Run, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, metric, endpoint, exit_code, stdout, stderr, duration_ms, one_shot, started_at
		FROM job_runs
		WHERE metric = ? AND endpoint = ?
		ORDER BY id DESC
		LIMIT ?
	`, metric, endpoint, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var durationMs int64
		var startedAt db.NullTime
		err := rows.Scan(&run.ID, &run.Metric, &run.Endpoint, &run.ExitCode,
			&run.Stdout, &run.Stderr, &durationMs, &run.OneShot, &startedAt)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		run.StartedAt = startedAt.Time
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// Execute runs reg once and records the outcome.
func (s *Store) Execute(ctx context.Context, reg *Registration, oneShot bool) (*Run, error) {
	run := &Run{
		Metric:    reg.Metric,
		Endpoint:  reg.Endpoint,
		OneShot:   oneShot,
		StartedAt: s.now(),
	}

	result, err := s.runner.Run(ctx, reg.Invocation())
	if result != nil {
		run.ExitCode = result.ExitCode
		run.Stdout = result.Stdout
		run.Stderr = result.Stderr
		run.Duration = result.Duration
	}
	if err != nil {
		run.ExitCode = -1
		if run.Stderr != "" {
			run.Stderr += "\n"
		}
		run.Stderr += err.Error()
	}

	// The result is kept even when ctx was canceled during the run.
	if recErr := s.RecordRun(context.WithoutCancel(ctx), run); recErr != nil {
		return run, recErr
	}
	return run, err
}

// RunOnce executes reg outside its schedule and returns the exit code.
func (s *Store) RunOnce(ctx context.Context, reg *Registration) (int, error) {
	run, err := s.Execute(ctx, reg, true)
	if err != nil {
		slog.Error("one-shot run failed", "metric", reg.Metric, "endpoint", reg.Endpoint, "error", err)
	}
	return run.ExitCode, nil
}

// QueryStatus renders the backend view of metric on endpoint in format.
func (s *Store) QueryStatus(ctx context.Context, metric, endpoint, format string) (string, error) {
	reg, err := s.Registration(ctx, metric, endpoint)
	if err != nil && !errors.Is(err, ErrNotRegistered) {
		return "", err
	}

	limit := 1
	if format == FormatLog {
		limit = logLimit
	}
	runs, err := s.LastRuns(ctx, metric, endpoint, limit)
	if err != nil {
		return "", err
	}
	var last *Run
	if len(runs) > 0 {
		last = runs[0]
	}

	switch format {
	case FormatBrief:
		return s.brief(reg), nil
	case FormatLong:
		return s.long(reg, last), nil
	case FormatFull:
		var b strings.Builder
		b.WriteString(s.long(reg, last))
		if last != nil {
			fmt.Fprintf(&b, "\nstdout:\n%s", last.Stdout)
			if last.Stderr != "" {
				fmt.Fprintf(&b, "\nstderr:\n%s", last.Stderr)
			}
		}
		return b.String(), nil
	case FormatLog:
		if len(runs) == 0 {
			return "no runs recorded", nil
		}
		lines := make([]string, 0, len(runs))
		for _, run := range runs {
			lines = append(lines, s.runLine(run))
		}
		return strings.Join(lines, "\n"), nil
	case FormatOut:
		if last == nil {
			return "", nil
		}
		return last.Stdout, nil
	case FormatErr:
		if last == nil {
			return "", nil
		}
		return last.Stderr, nil
	default:
		return "", fmt.Errorf("unknown status format %q", format)
	}
}

func (s *Store) ago(t time.Time) string {
	return units.HumanDuration(s.now().Sub(t)) + " ago"
}

func (s *Store) brief(reg *Registration) string {
	if reg == nil {
		return "DISABLED"
	}
	return "ENABLED since " + s.ago(reg.RegisteredAt)
}

func (s *Store) long(reg *Registration, last *Run) string {
	if reg == nil {
		return "DISABLED"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "metric:     %s\n", reg.Metric)
	fmt.Fprintf(&b, "endpoint:   %s\n", reg.Endpoint)
	fmt.Fprintf(&b, "executable: %s\n", reg.Executable)
	fmt.Fprintf(&b, "args:       %s\n", reg.Args)

	vars := make([]string, 0, len(reg.Env))
	for v := range reg.Env {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	for _, v := range vars {
		fmt.Fprintf(&b, "env:        %s\n", reg.Env[v])
	}

	if reg.Owner != "" {
		fmt.Fprintf(&b, "owner:      %s\n", reg.Owner)
	}
	fmt.Fprintf(&b, "interval:   %s\n", reg.Interval)
	fmt.Fprintf(&b, "registered: %s\n", s.ago(reg.RegisteredAt))
	if last == nil {
		b.WriteString("last run:   never")
	} else {
		fmt.Fprintf(&b, "last run:   %s", s.runLine(last))
	}
	return b.String()
}

func (s *Store) runLine(run *Run) string {
	kind := "scheduled"
	if run.OneShot {
		kind = "one-shot"
	}
	return fmt.Sprintf("%s %s exit=%d duration=%s (%s)",
		run.StartedAt.UTC().Format(time.RFC3339), kind, run.ExitCode,
		run.Duration.Round(time.Millisecond), s.ago(run.StartedAt))
}
