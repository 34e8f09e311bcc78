// cronlock запускает периодические задачи так, чтобы в каждый момент
// выполнялся не более чем один экземпляр задачи во всём кластере.
//
// Использование:
//
//	cronlock [--store postgres|redis|memory] [--jobs-file FILE] [--json] <command> [flags]
//
// Команды:
//
//	run      Однократный запуск задачи под блокировкой
//	serve    Запуск задач по расписанию
//	cleanup  Очистка просроченных блокировок
//	locks    Просмотр и ручное снятие блокировок
//	jobs     Просмотр задач
//	migrate  Создание таблицы блокировок
//	alerts   Чтение оповещений
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/cronlock/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var globals cli.Globals

	rootCmd := &cobra.Command{
		Use:           "cronlock",
		Short:         "cronlock: cluster-wide single execution for periodic jobs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	globals.Bind(rootCmd)

	envFn := cli.NewEnvFunc(&globals)
	outputFn := func() *cli.Output { return cli.NewOutput(globals.JSON) }

	rootCmd.AddCommand(
		cli.NewRunCmd(envFn, outputFn),
		cli.NewServeCmd(envFn),
		cli.NewCleanupCmd(envFn, outputFn),
		cli.NewLocksCmd(envFn, outputFn),
		cli.NewJobsCmd(envFn, outputFn),
		cli.NewMigrateCmd(envFn, outputFn),
		cli.NewAlertsCmd(envFn, outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Err != nil {
				fmt.Fprintln(os.Stderr, "Error:", exitErr.Err)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
