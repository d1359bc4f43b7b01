// Package cmd defines the groundbot command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "groundbot",
	Short: "Grounded documentation question answering",
	Long: `groundbot answers questions strictly from official documentation.

A question is classified first; when the topic maps to known official
sources, the relevant documentation pack is crawled and indexed on
demand, evidence is retrieved, and the answer is generated with
citations. Questions that cannot be grounded get one clarifying
question back instead of a guess.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
