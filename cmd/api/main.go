package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "event-updates"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

// NewRootCmd creates the root command.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Event updates broadcast service",
		Long:          "Organizers post updates to an event; connected attendees receive them live and offline ticket holders get a push notification.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(appName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.AddCommand(
		NewServeCmd(),
		NewWorkerCmd(),
		NewMigrateCmd(),
	)

	return cmd
}

func main() {
	if err := NewRootCmd(Version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
