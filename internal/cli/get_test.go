package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedLocal runs the owned_roles scenario so the local store holds
// users::1, roles::1 and roles::2.
func seedLocal(t *testing.T) {
	t.Helper()
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), scenarioPath("owned_roles"))
	require.NoError(t, err)
}

func TestGetDocument(t *testing.T) {
	localEnv(t)
	seedLocal(t)

	out, err := execute(t, NewGetCommand(&RootOptions{Format: "text"}), "roles::1")
	require.NoError(t, err)
	assert.Contains(t, out, "roles::1 (cas ")
	assert.Contains(t, out, `"label": "admin"`)
}

func TestGetDocumentsJSON(t *testing.T) {
	localEnv(t)
	seedLocal(t)

	out, err := execute(t, NewGetCommand(&RootOptions{Format: "json"}), "users::1", "roles::2")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   []Document `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "users::1", resp.Data[0].Key)
	assert.Equal(t, "ann", resp.Data[0].Doc["name"])
	assert.NotZero(t, resp.Data[0].CAS)
	assert.Equal(t, "editor", resp.Data[1].Doc["label"])
}

func TestGetMissing(t *testing.T) {
	localEnv(t)

	out, err := execute(t, NewGetCommand(&RootOptions{Format: "json"}), "users::404")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestGetPartial(t *testing.T) {
	localEnv(t)
	seedLocal(t)

	out, err := execute(t, NewGetCommand(&RootOptions{Format: "text"}), "roles::1", "roles::404")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"label": "admin"`, "found keys are still printed")
}
