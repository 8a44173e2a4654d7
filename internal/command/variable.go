package command

import (
	"context"
	"fmt"

	"github.com/fgeck/pgbackctl/internal/models"
)

// showVariableCmd prints one session variable or, for the
// SHOW VARIABLES tag, the whole registry. Variables live outside the
// catalog, so no transaction envelope applies.
type showVariableCmd struct {
	baseCommand
}

func (c *showVariableCmd) Execute(ctx context.Context, flag bool) error {
	if c.rt.Vars == nil {
		return models.NewCatalogError("%s requires a variable registry", c.descr.Tag)
	}

	if c.descr.Tag == models.ShowVariables {
		fmt.Fprint(c.out(), c.rt.Vars.ShowAll())
		return nil
	}

	line, err := c.rt.Vars.Show(c.descr.VarName)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out(), line)
	return nil
}

// setVariableCmd assigns a session variable from the descriptor's
// typed payload.
type setVariableCmd struct {
	baseCommand
}

func (c *setVariableCmd) Execute(ctx context.Context, flag bool) error {
	if c.rt.Vars == nil {
		return models.NewCatalogError("SET VARIABLE requires a variable registry")
	}

	switch c.descr.VarType {
	case models.VarTypeBool:
		return c.rt.Vars.SetBool(c.descr.VarName, c.descr.VarValBool)
	case models.VarTypeInteger:
		return c.rt.Vars.SetInt(c.descr.VarName, c.descr.VarValInt)
	case models.VarTypeString, models.VarTypeEnum:
		return c.rt.Vars.SetString(c.descr.VarName, c.descr.VarValStr)
	}
	return models.NewCatalogError("SET VARIABLE requires a typed value")
}

// resetVariableCmd restores a session variable to its default.
type resetVariableCmd struct {
	baseCommand
}

func (c *resetVariableCmd) Execute(ctx context.Context, flag bool) error {
	if c.rt.Vars == nil {
		return models.NewCatalogError("RESET VARIABLE requires a variable registry")
	}
	return c.rt.Vars.Reset(c.descr.VarName)
}
