package main

import (
	"fmt"

	"github.com/spf13/cobra"

	mooddetector "github.com/menta2k/mood-detector"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Print the emotion labels in classifier output order",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for i, label := range mooddetector.Labels() {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, label)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), mooddetector.GetVersion())
	},
}

func init() {
	rootCmd.AddCommand(labelsCmd, versionCmd)
}
