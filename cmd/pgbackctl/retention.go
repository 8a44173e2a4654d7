package main

import (
	"github.com/spf13/cobra"

	"github.com/fgeck/pgbackctl/internal/models"
)

func retentionCmds() []*cobra.Command {
	return []*cobra.Command{
		createRetentionCommand(),
		dropRetentionCommand(),
		listRetentionCommand(),
		applyRetentionCommand(),
	}
}

func addRetentionRule(descr *models.CatalogDescr,
	action models.RetentionParsedAction, modifier models.RetentionParsedModifier,
	value string) error {

	descr.RetentionParser = models.RetentionParserState{Action: action, Modifier: modifier}
	return descr.AddRetentionRule(value)
}

func createRetentionCommand() *cobra.Command {
	var (
		keepNum       string
		keepLabel     string
		keepNewerThan string
		keepOlderThan string
		dropNum       string
		dropLabel     string
		dropNewerThan string
		dropOlderThan string
		cleanup       bool
	)

	cmd := &cobra.Command{
		Use:   "create-retention NAME",
		Short: "Create a retention policy",
		Long: `Create a retention policy from one or more rules. Interval values
are expressions like "7 days" or "1 months +12 hours".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.CreateRetentionPolicy
			descr.RetentionName = args[0]

			rules := []struct {
				action   models.RetentionParsedAction
				modifier models.RetentionParsedModifier
				value    string
			}{
				{models.RetentionActionKeep, models.RetentionModifierNum, keepNum},
				{models.RetentionActionKeep, models.RetentionModifierLabel, keepLabel},
				{models.RetentionActionKeep, models.RetentionModifierNewerDatetime, keepNewerThan},
				{models.RetentionActionKeep, models.RetentionModifierOlderDatetime, keepOlderThan},
				{models.RetentionActionDrop, models.RetentionModifierNum, dropNum},
				{models.RetentionActionDrop, models.RetentionModifierLabel, dropLabel},
				{models.RetentionActionDrop, models.RetentionModifierNewerDatetime, dropNewerThan},
				{models.RetentionActionDrop, models.RetentionModifierOlderDatetime, dropOlderThan},
			}
			for _, rule := range rules {
				if rule.value == "" {
					continue
				}
				if err := addRetentionRule(descr, rule.action, rule.modifier, rule.value); err != nil {
					return err
				}
			}
			if cleanup {
				if err := addRetentionRule(descr, models.RetentionNoAction,
					models.RetentionModifierCleanup, ""); err != nil {
					return err
				}
			}

			if descr.Retention == nil || len(descr.Retention.Rules) == 0 {
				return cmd.Help()
			}
			return dispatch(descr, false)
		},
	}

	cmd.Flags().StringVar(&keepNum, "keep-num", "", "keep the N newest base backups")
	cmd.Flags().StringVar(&keepLabel, "keep-label", "", "keep base backups matching a label pattern")
	cmd.Flags().StringVar(&keepNewerThan, "keep-newer-than", "", "keep base backups newer than an interval")
	cmd.Flags().StringVar(&keepOlderThan, "keep-older-than", "", "keep base backups older than an interval")
	cmd.Flags().StringVar(&dropNum, "drop-num", "", "drop all but the N newest base backups")
	cmd.Flags().StringVar(&dropLabel, "drop-label", "", "drop base backups matching a label pattern")
	cmd.Flags().StringVar(&dropNewerThan, "drop-newer-than", "", "drop base backups newer than an interval")
	cmd.Flags().StringVar(&dropOlderThan, "drop-older-than", "", "drop base backups older than an interval")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "add a WAL cleanup rule")
	return cmd
}

func dropRetentionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drop-retention NAME",
		Short: "Remove a retention policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.DropRetentionPolicy
			descr.RetentionName = args[0]
			return dispatch(descr, false)
		},
	}
}

func listRetentionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-retention [NAME]",
		Short: "List retention policies and their rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.ListRetentionPolicies
			if len(args) == 1 {
				descr.Tag = models.ListRetentionPolicy
				descr.RetentionName = args[0]
			}
			return dispatch(descr, false)
		},
	}
}

func applyRetentionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "apply-retention POLICY ARCHIVE",
		Short: "Apply a retention policy to an archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.ApplyRetentionPolicy
			descr.RetentionName = args[0]
			descr.ArchiveName = args[1]
			return dispatch(descr, false)
		},
	}
}
