package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fgeck/pgbackctl/internal/config"
	"github.com/fgeck/pgbackctl/internal/models"
)

func variableCmds() []*cobra.Command {
	return []*cobra.Command{
		showVariableCommand(),
		setVariableCommand(),
		resetVariableCommand(),
	}
}

func showVariableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [NAME]",
		Short: "Show session variables",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.ShowVariables
			if len(args) == 1 {
				descr.Tag = models.ShowVariable
				descr.VarName = args[0]
			}
			return dispatch(descr, false)
		},
	}
}

func setVariableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set NAME VALUE",
		Short: "Set a session variable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.SetVariable
			typeVariablePayload(descr, args[0], args[1])
			return dispatch(descr, false)
		},
	}
}

// typeVariablePayload converts the raw command line value into the
// registered type of the variable. Unknown names pass through as
// strings so the registry reports them.
func typeVariablePayload(descr *models.CatalogDescr, name, value string) {
	variable, err := config.NewVariables().Get(name)
	if err != nil {
		descr.SetVariableString(name, value)
		return
	}

	switch variable.Type {
	case models.VarTypeBool:
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			descr.SetVariableString(name, value)
			return
		}
		descr.SetVariableBool(name, parsed)
	case models.VarTypeInteger:
		parsed, err := strconv.Atoi(value)
		if err != nil {
			descr.SetVariableString(name, value)
			return
		}
		descr.SetVariableInt(name, parsed)
	default:
		descr.SetVariableString(name, value)
	}
}

func resetVariableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset NAME",
		Short: "Reset a session variable to its default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descr := models.NewCatalogDescr()
			descr.Tag = models.ResetVariable
			descr.VarName = args[0]
			return dispatch(descr, false)
		},
	}
}
