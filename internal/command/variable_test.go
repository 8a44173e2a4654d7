package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgeck/pgbackctl/internal/config"
	"github.com/fgeck/pgbackctl/internal/models"
)

func TestSetAndShowVariable(t *testing.T) {
	f := setupFixture(t)

	set := models.NewCatalogDescr()
	set.Tag = models.SetVariable
	set.SetVariableInt(config.VarMaxWorkerJobs, 3)
	require.NoError(t, f.run(t, set, false))

	show := models.NewCatalogDescr()
	show.Tag = models.ShowVariable
	show.VarName = config.VarMaxWorkerJobs
	require.NoError(t, f.run(t, show, false))

	assert.Contains(t, f.out.String(), "max_worker_jobs = 3")
}

func TestShowAllVariables(t *testing.T) {
	f := setupFixture(t)

	show := models.NewCatalogDescr()
	show.Tag = models.ShowVariables
	require.NoError(t, f.run(t, show, false))

	assert.Contains(t, f.out.String(), "log_level = info")
	assert.Contains(t, f.out.String(), "backup_profile = default")
}

func TestResetVariable(t *testing.T) {
	f := setupFixture(t)

	set := models.NewCatalogDescr()
	set.Tag = models.SetVariable
	set.SetVariableString(config.VarLogLevel, "debug")
	require.NoError(t, f.run(t, set, false))

	reset := models.NewCatalogDescr()
	reset.Tag = models.ResetVariable
	reset.VarName = config.VarLogLevel
	require.NoError(t, f.run(t, reset, false))

	show := models.NewCatalogDescr()
	show.Tag = models.ShowVariable
	show.VarName = config.VarLogLevel
	require.NoError(t, f.run(t, show, false))
	assert.Contains(t, f.out.String(), "log_level = info")
}

func TestSetVariableRejectsUnknownName(t *testing.T) {
	f := setupFixture(t)

	set := models.NewCatalogDescr()
	set.Tag = models.SetVariable
	set.SetVariableBool("ghost", true)
	assert.Error(t, f.run(t, set, false))
}

func TestVariableCommandsRequireRegistry(t *testing.T) {
	f := setupFixture(t)
	f.rt.Vars = nil

	show := models.NewCatalogDescr()
	show.Tag = models.ShowVariables
	assert.Error(t, f.run(t, show, false))
}
