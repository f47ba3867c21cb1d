package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	app := &app{}
	c := cobra.Command{
		Use:           "adsweep",
		Short:         "Find, disable and remove stale Active Directory accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			app.close()
		},
	}

	c.PersistentFlags().StringVar(&app.envPath, "env", "settings.env", "path to the credentials env file")
	c.PersistentFlags().StringVar(&app.policyPath, "config", "sweep.yaml", "path to the sweep policy file")
	c.PersistentFlags().BoolVar(&app.debug, "debug", false, "log at debug level in console format")

	c.AddCommand(
		newRunCmd(app),
		newDaemonCmd(app),
		newCheckCmd(app),
		newInitDBCmd(app),
		newTaskCmd(app),
	)
	return &c
}
