package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-pipeline/pipeline"
)

var validateCmd = &cobra.Command{
	Use:   "validate <pipeline.yml>",
	Short: "Validate a pipeline definition and print the stage plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := pipeline.LoadFile(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Pipeline: %s\n", def.Name)
		fmt.Printf("Trigger:  branch=%s", def.Trigger.Branch)
		if len(def.Trigger.IgnorePaths) > 0 {
			fmt.Printf(" ignore-paths=%s", strings.Join(def.Trigger.IgnorePaths, ","))
		}
		fmt.Println()
		fmt.Println("Stages:")
		for i, stage := range def.Stages {
			fmt.Printf("  %d. %s", i+1, stage.Name)
			var notes []string
			if len(stage.NeedsArtifacts) > 0 {
				notes = append(notes, "needs "+strings.Join(stage.NeedsArtifacts, ","))
			}
			if len(stage.Produces) > 0 {
				notes = append(notes, "produces "+strings.Join(stage.Produces, ","))
			}
			if len(stage.Secrets) > 0 {
				notes = append(notes, fmt.Sprintf("%d secret(s)", len(stage.Secrets)))
			}
			if len(notes) > 0 {
				fmt.Printf(" (%s)", strings.Join(notes, "; "))
			}
			fmt.Println()
		}
		return nil
	},
}
