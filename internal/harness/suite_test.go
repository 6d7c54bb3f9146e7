package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarioFiles(t *testing.T) {
	files, err := FindScenarioFiles("testdata/scenarios", "")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = FindScenarioFiles("testdata/scenarios", "environment_*")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0], "environment_lifecycle.yaml")

	_, err = FindScenarioFiles("testdata/scenarios", "[")
	assert.Error(t, err)
}

func TestRunSuite(t *testing.T) {
	ctx := context.Background()

	result, err := RunSuite(ctx, "testdata/scenarios", "")
	require.NoError(t, err)
	assert.Equal(t, &SuiteResult{Total: 2, Passed: 2}, result)

	result, err = RunSuite(ctx, "testdata/failing", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "wrong_expectations", result.Failures[0].Scenario)
	assert.Len(t, result.Failures[0].Errors, 3)

	_, err = RunSuite(ctx, "testdata/absent", "")
	assert.Error(t, err)
}
