package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/cronlock/internal/jobs"
	"github.com/shaiso/cronlock/internal/runner"
)

// ExitError задаёт код выхода процесса. Err может быть nil, если исход
// уже выведен и печатать ошибку не нужно.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// runView: исход запуска для вывода.
type runView struct {
	Job          string `json:"job"`
	Status       string `json:"status"`
	State        string `json:"state"`
	HolderID     string `json:"holder_id"`
	Reclaimed    bool   `json:"reclaimed"`
	Overrun      bool   `json:"overrun"`
	StartedAt    string `json:"started_at,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Error        string `json:"error,omitempty"`
	AcquireError string `json:"acquire_error,omitempty"`
	ReleaseError string `json:"release_error,omitempty"`
	ExitCode     int    `json:"exit_code"`
}

func newRunView(out *runner.Outcome, holderID string) runView {
	v := runView{
		Job:      out.Job,
		Status:   out.Status.String(),
		State:    string(out.State),
		HolderID: holderID,
		Overrun:  out.Overrun,
		ExitCode: out.ExitCode(),
	}
	if out.Lease != nil {
		v.Reclaimed = out.Lease.Reclaimed
	}
	if out.Executed() {
		v.StartedAt = formatTime(out.StartedAt)
		v.Duration = formatDuration(out.Duration)
	}
	if out.Err != nil {
		v.Error = out.Err.Error()
	}
	if out.AcquireErr != nil {
		v.AcquireError = out.AcquireErr.Error()
	}
	if out.ReleaseErr != nil {
		v.ReleaseError = out.ReleaseErr.Error()
	}
	return v
}

// NewRunCmd создаёт команду однократного запуска задачи (для внешнего cron).
//
// Код выхода: 0 для SUCCEEDED и SKIPPED, 1 для FAILED и неснятой блокировки.
func NewRunCmd(envFn EnvFunc, outputFn func() *Output) *cobra.Command {
	var dryRun bool
	var params []string

	cmd := &cobra.Command{
		Use:   "run JOB",
		Short: "Run a job once if its lock is free",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}

			// Недоступное хранилище: SKIPPED на acquire, а не ошибка запуска
			env, err := envFn(cmd.Context(), WithLazyStore())
			if err != nil {
				return err
			}
			defer env.Close()

			registry, err := env.Jobs()
			if err != nil {
				return err
			}
			job, err := registry.Get(args[0])
			if err != nil {
				return err
			}

			r := env.Runner(env.Notifier(cmd.Context()))
			outcome := r.Run(cmd.Context(), job, jobs.Options{
				DryRun: dryRun,
				Params: parsed,
			})

			out := outputFn()
			view := newRunView(outcome, r.HolderID())
			out.Print(
				[]string{"JOB", "STATUS", "DURATION", "OVERRUN", "ERROR"},
				[][]string{{view.Job, view.Status, orDash(view.Duration), strconv.FormatBool(view.Overrun), orDash(firstNonEmpty(view.Error, view.AcquireError, view.ReleaseError))}},
				view,
			)

			if code := outcome.ExitCode(); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Pass dry-run to the job body")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Job parameter as KEY=VALUE (repeatable)")

	return cmd
}

// parseParams разбирает KEY=VALUE в map.
func parseParams(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param format %q, expected KEY=VALUE", kv)
		}
		params[key] = value
	}
	return params, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
