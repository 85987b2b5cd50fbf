package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"module": "Shop"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeJournal, "open journal failed", map[string]string{"path": "ignis.db"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E005", resp.Error.Code)
	assert.Equal(t, "open journal failed", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_JSONFailureCarriesData(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Failure(ErrCodeDeployFailed, "1 action failed", map[string]string{"overall": "partial-failure"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeDeployFailed, resp.Error.Code)
	assert.Equal(t, map[string]any{"overall": "partial-failure"}, resp.Data)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error(ErrCodeBuild, "build failed", "Shop#Market"))
			assert.Contains(t, buf.String(), "Error [E004]: build failed")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details: Shop#Market")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("loaded %d actions", 3)

	assert.Empty(t, out.String())
	assert.Equal(t, "loaded 3 actions\n", errOut.String())
}

func TestOutputFormatter_VerboseLogDisabled(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	formatter.VerboseLog("loaded %d actions", 3)
	assert.Empty(t, buf.String())
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitFailure},
		{"failure", NewExitError(ExitFailure, "partial-failure"), ExitFailure},
		{"command", NewExitError(ExitCommandError, "bad module"), ExitCommandError},
		{"wrapped", fmt.Errorf("deploy: %w", WrapExitError(ExitCommandError, "journal", errors.New("locked"))), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	inner := errors.New("database is locked")
	err := WrapExitError(ExitCommandError, "open journal", inner)

	assert.Equal(t, "open journal: database is locked", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "plan refused", NewExitError(ExitCommandError, "plan refused").Error())
}
