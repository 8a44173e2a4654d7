package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgeck/pgbackctl/internal/models"
)

func TestVariablesDefaults(t *testing.T) {
	r := NewVariables()

	v, err := r.Get(VarLogLevel)
	require.NoError(t, err)
	assert.Equal(t, models.VarTypeEnum, v.Type)
	assert.Equal(t, "info", v.String())

	v, err = r.Get(VarBackupProfile)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultProfileName, v.String())

	_, err = r.Get("ghost")
	assert.Error(t, err)
}

func TestVariablesSetAndReset(t *testing.T) {
	r := NewVariables()

	require.NoError(t, r.SetString(VarArchiveDir, "/mnt/archive"))
	require.NoError(t, r.SetBool(VarLogJSON, true))
	require.NoError(t, r.SetInt(VarMaxWorkerJobs, 4))

	dir, err := r.Get(VarArchiveDir)
	require.NoError(t, err)
	s, err := dir.StringValue()
	require.NoError(t, err)
	assert.Equal(t, "/mnt/archive", s)

	jobs, err := r.Get(VarMaxWorkerJobs)
	require.NoError(t, err)
	n, err := jobs.IntValue()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, r.Reset(VarMaxWorkerJobs))
	n, err = jobs.IntValue()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVariablesTypeMismatch(t *testing.T) {
	r := NewVariables()

	assert.Error(t, r.SetBool(VarArchiveDir, true))
	assert.Error(t, r.SetInt(VarLogJSON, 1))
	assert.Error(t, r.SetString(VarMaxWorkerJobs, "many"))

	v, err := r.Get(VarLogJSON)
	require.NoError(t, err)
	_, err = v.IntValue()
	assert.Error(t, err)
}

func TestVariablesEnumValidation(t *testing.T) {
	r := NewVariables()

	require.NoError(t, r.SetString(VarLogLevel, "warn"))

	err := r.SetString(VarLogLevel, "noisy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts one of")
}

func TestVariablesSetFromString(t *testing.T) {
	r := NewVariables()

	require.NoError(t, r.SetFromString(VarLogJSON, "true"))
	require.NoError(t, r.SetFromString(VarMaxWorkerJobs, "8"))
	require.NoError(t, r.SetFromString(VarLogLevel, "error"))

	assert.Error(t, r.SetFromString(VarLogJSON, "maybe"))
	assert.Error(t, r.SetFromString(VarMaxWorkerJobs, "eight"))
}

func TestVariablesShow(t *testing.T) {
	r := NewVariables()
	require.NoError(t, r.SetInt(VarMaxWorkerJobs, 2))

	line, err := r.Show(VarMaxWorkerJobs)
	require.NoError(t, err)
	assert.Equal(t, "max_worker_jobs = 2", line)

	all := r.ShowAll()
	assert.Contains(t, all, "log_level = info")
	assert.Contains(t, all, "max_worker_jobs = 2")
}
