package cli

import (
	"github.com/spf13/cobra"

	"github.com/shaiso/Courier/internal/app"
)

// Loader создаёт приложение по имени.
type Loader func(name string, opts ...app.Option) (*app.App, error)

// CatalogLoader - Loader поверх каталога и конфигурации из окружения.
func CatalogLoader(catalog app.Catalog) Loader {
	return func(name string, opts ...app.Option) (*app.App, error) {
		cfg, err := app.LoadConfig()
		if err != nil {
			return nil, err
		}
		return catalog.Load(name, cfg, opts...)
	}
}

// NewRootCmd создаёт корневую команду courier.
func NewRootCmd(version string, load Loader) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "courier",
		Short:         "Courier - distributed task queue over AMQP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Flags().BoolP("version", "V", false, "Print version and exit")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Err: err}
	})

	rootCmd.AddCommand(
		NewWorkerCmd(load),
		NewSendCmd(load),
		NewTasksCmd(load),
	)

	return rootCmd
}
