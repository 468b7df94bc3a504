// Courier - распределённая очередь task поверх AMQP.
//
// Использование:
//
//	courier [-V] <command> [flags]
//
// Команды:
//
//	worker  Запуск воркера
//	send    Отправка task или chain
//	tasks   Список task приложения
package main

import (
	"fmt"
	"os"

	"github.com/shaiso/Courier/internal/app"
	"github.com/shaiso/Courier/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	rootCmd := cli.NewRootCmd(version, cli.CatalogLoader(app.BuiltinCatalog()))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
