package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"medocs-backend/internal/documents"
	"medocs-backend/internal/processing"
)

const stuckMessage = "processing timed out"

func reprocessCmd(d deps) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reprocess <documentID>",
		Short: "Run a processing attempt for a document and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd.Context(), d)
			if err != nil {
				return err
			}
			doc, outcome, err := app.Processing.Process(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}
			if outcome == processing.OutcomeAlreadyProcessing {
				fmt.Fprintln(cmd.ErrOrStderr(), "an attempt is already running; use --force to supersede it")
			}
			return writeJSON(cmd.OutOrStdout(), documents.ToResponse(doc))
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Start a new attempt even if one is in flight")
	return cmd
}

func stuckCmd(d deps) *cobra.Command {
	var (
		olderThan time.Duration
		fail      bool
	)
	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "List documents left in processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd.Context(), d)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than") && app.Config.StuckProcessingAfter > 0 {
				olderThan = app.Config.StuckProcessingAfter
			}
			stuck, err := app.Processing.ListStuck(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			if fail {
				for i, doc := range stuck {
					failed, err := app.Processing.FailProcessing(cmd.Context(), doc.ID, doc.Attempt, stuckMessage)
					if err != nil {
						if errors.Is(err, documents.ErrInvalidTransition) {
							continue
						}
						return fmt.Errorf("fail %s: %w", doc.ID, err)
					}
					stuck[i] = failed
				}
			}
			return writeJSON(cmd.OutOrStdout(), documents.ToResponses(stuck))
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 15*time.Minute, "Minimum time spent in processing")
	cmd.Flags().BoolVar(&fail, "fail", false, "Move the listed documents to the error state")
	return cmd
}
