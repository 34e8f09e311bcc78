package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/cronlock/internal/scheduler"
)

type jobView struct {
	Name             string `json:"name"`
	Schedule         string `json:"schedule,omitempty"`
	NextRun          string `json:"next_run,omitempty"`
	MaxExecutionTime string `json:"max_execution_time"`
	Description      string `json:"description,omitempty"`
}

// NewJobsCmd создаёт группу команд для просмотра задач.
func NewJobsCmd(envFn EnvFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect configured jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List jobs from the definitions file",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := envFn(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			registry, err := env.Jobs()
			if err != nil {
				return err
			}
			loc, err := env.Config.Location()
			if err != nil {
				return err
			}

			now := time.Now()
			list := registry.Jobs()
			views := make([]jobView, len(list))
			rows := make([][]string, len(list))
			for i, job := range list {
				v := jobView{
					Name:             job.Name,
					Schedule:         job.Schedule,
					MaxExecutionTime: job.MaxExecutionTime.String(),
					Description:      job.Description,
				}
				if job.Schedule != "" {
					if next, err := scheduler.NextRun(job.Schedule, now, loc); err == nil {
						v.NextRun = formatTime(next)
					}
				}
				views[i] = v
				rows[i] = []string{v.Name, orDash(v.Schedule), orDash(v.NextRun), v.MaxExecutionTime, orDash(v.Description)}
			}

			outputFn().Print([]string{"NAME", "SCHEDULE", "NEXT_RUN", "MAX_EXECUTION_TIME", "DESCRIPTION"}, rows, views)
			return nil
		},
	})

	return cmd
}
