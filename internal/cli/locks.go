package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/cronlock/internal/domain"
	"github.com/shaiso/cronlock/internal/lock"
)

// lockView: запись блокировки для вывода.
type lockView struct {
	Job        string `json:"job"`
	HolderID   string `json:"holder_id"`
	AcquiredAt string `json:"acquired_at"`
	ExpiresAt  string `json:"expires_at"`
	Remaining  string `json:"remaining"`
	Expired    bool   `json:"expired"`
}

func newLockView(rec domain.LockRecord, now time.Time) lockView {
	return lockView{
		Job:        rec.JobName,
		HolderID:   rec.HolderID,
		AcquiredAt: formatTime(rec.AcquiredAt),
		ExpiresAt:  formatTime(rec.ExpiresAt),
		Remaining:  formatDuration(rec.Remaining(now)),
		Expired:    rec.IsExpired(now),
	}
}

func (v lockView) row() []string {
	state := "active"
	if v.Expired {
		state = "expired"
	}
	return []string{v.Job, v.HolderID, v.AcquiredAt, v.ExpiresAt, v.Remaining, state}
}

var lockHeaders = []string{"JOB", "HOLDER", "ACQUIRED", "EXPIRES", "REMAINING", "STATE"}

// NewLocksCmd создаёт группу команд диагностики блокировок.
func NewLocksCmd(envFn EnvFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Inspect and manage job locks",
	}

	cmd.AddCommand(
		newLocksListCmd(envFn, outputFn),
		newLocksShowCmd(envFn, outputFn),
		newLocksReleaseCmd(envFn, outputFn),
	)

	return cmd
}

func newLocksListCmd(envFn EnvFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current lock records",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := envFn(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			records, err := env.Locks.List(cmd.Context())
			if err != nil {
				return err
			}
			now := env.Locks.Now(cmd.Context())

			views := make([]lockView, len(records))
			rows := make([][]string, len(records))
			for i, rec := range records {
				views[i] = newLockView(rec, now)
				rows[i] = views[i].row()
			}

			outputFn().Print(lockHeaders, rows, views)
			return nil
		},
	}
}

func newLocksShowCmd(envFn EnvFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show JOB",
		Short: "Show the lock record of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := envFn(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			rec, err := env.Locks.Get(cmd.Context(), args[0])
			if errors.Is(err, lock.ErrNotFound) {
				return fmt.Errorf("job %s is not locked", args[0])
			}
			if err != nil {
				return err
			}

			view := newLockView(*rec, env.Locks.Now(cmd.Context()))
			outputFn().Print(lockHeaders, [][]string{view.row()}, view)
			return nil
		},
	}
}

// newLocksReleaseCmd: ручное снятие блокировки оператором.
// Требует --holder, чтобы нельзя было снять блокировку живого процесса по ошибке.
func newLocksReleaseCmd(envFn EnvFunc, outputFn func() *Output) *cobra.Command {
	var holder string

	cmd := &cobra.Command{
		Use:   "release JOB",
		Short: "Release a lock held by the given holder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := envFn(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			released, err := env.Locks.Release(cmd.Context(), args[0], holder)
			if err != nil {
				return err
			}
			if !released {
				return fmt.Errorf("lock %s is not held by %s", args[0], holder)
			}

			env.Logger.Warn("lock released manually", "job", args[0], "holder_id", holder)
			outputFn().Success(fmt.Sprintf("Lock released: %s", args[0]))
			return nil
		},
	}

	cmd.Flags().StringVar(&holder, "holder", "", "Holder id that owns the lock (required)")
	cmd.MarkFlagRequired("holder")

	return cmd
}

// NewCleanupCmd создаёт команду разовой очистки просроченных блокировок.
func NewCleanupCmd(envFn EnvFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired lock records",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := envFn(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			deleted, err := env.Locks.CleanupExpired(cmd.Context())
			if err != nil {
				return err
			}

			out := outputFn()
			if out.JSONMode() {
				out.JSON(map[string]int64{"deleted": deleted})
				return nil
			}
			out.Success(fmt.Sprintf("Expired locks deleted: %d", deleted))
			return nil
		},
	}
}
