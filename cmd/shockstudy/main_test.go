package main

import (
	"bytes"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shockstudy/internal/config"
	"shockstudy/internal/operations"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{
		config.StageDownload, config.StageEventStudy, config.StageSectors, config.StageInference,
		config.StageDiD, config.StageDDD, config.StageVolatility, config.StageVolGroups,
		config.StageLinkages, config.StageReport, "run", "serve", "version",
	} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "shockstudy "+Version)
}

func TestStudyFlagsOverrideOnlyWhenSet(t *testing.T) {
	study := &studyFlags{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	study.register(fs)
	require.NoError(t, fs.Parse([]string{"--pre-days", "60", "--drop-start", "2021-03-20", "--drop-end", "2021-03-25"}))

	cfg := config.Default()
	cfg.Study.PostDays = 30
	study.apply(fs, &cfg.Study)

	assert.Equal(t, 60, cfg.Study.PreDays)
	assert.Equal(t, 30, cfg.Study.PostDays, "unset flags keep the configured value")
	assert.Equal(t, "2021-03-20", cfg.Study.DropStart)
	assert.Equal(t, "2021-03-25", cfg.Study.DropEnd)
}

func TestStageWithoutInputsNamesProducer(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{config.StageEventStudy, "--base-dir", t.TempDir(), "--event-date", "2021-03-23", "--log-level", "error"})

	err := root.Execute()
	require.Error(t, err)
	missing, ok := operations.MissingInput(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, config.StageDownload, missing.Hint)
	assert.Equal(t, config.StageEventStudy, operations.FailedStage(err))
}

func TestInvalidEventDateRejected(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{config.StageDiD, "--base-dir", t.TempDir(), "--event-date", "23/03/2021"})
	assert.Error(t, root.Execute())
}
