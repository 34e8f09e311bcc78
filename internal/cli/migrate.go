package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/cronlock/internal/config"
	"github.com/shaiso/cronlock/internal/repo"
)

// NewMigrateCmd создаёт команду, создающую таблицу блокировок в Postgres.
func NewMigrateCmd(envFn EnvFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the job_locks table (postgres store only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := envFn(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			if env.Pool() == nil {
				return fmt.Errorf("migrate requires the %s store, got %s", config.StorePostgres, env.Config.Store)
			}
			if err := repo.EnsureSchema(cmd.Context(), env.Pool()); err != nil {
				return err
			}

			outputFn().Success("Schema is up to date")
			return nil
		},
	}
}
