package main

import (
	"github.com/spf13/cobra"

	"medocs-backend/internal/medications"
)

func medicationsCmd(d deps) *cobra.Command {
	var aggregated bool
	cmd := &cobra.Command{
		Use:   "medications <userID>",
		Short: "Print a user's medications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd.Context(), d)
			if err != nil {
				return err
			}
			if aggregated {
				aggs, err := app.MedicationsService.Aggregated(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), medications.ToAggregatedResponses(aggs))
			}
			views, err := app.MedicationsService.ListForUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), medications.ToMedicationResponses(views))
		},
	}
	cmd.Flags().BoolVar(&aggregated, "aggregated", false, "Merge entries across documents")
	return cmd
}
