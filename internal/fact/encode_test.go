package fact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestEncodeDecode(t *testing.T) {
	user := testUser(t)
	env := testEnvironment(t, user)

	decoded, err := Decode(env.Encode())
	require.NoError(t, err)
	assert.Equal(t, env.Reference(), decoded.Reference())
}

func TestDecodeWithoutHashComputesIt(t *testing.T) {
	doc := `
type: Environment
fields:
  identifier: prod
  replicas: 3
  ratio: 0.5
  archived: false
  owner: null
predecessors:
  creator:
    type: Jinaga.User
    hash: ` + userHash + `
`
	var m map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(doc), &m))

	f, err := Decode(m)
	require.NoError(t, err)
	assert.Equal(t, environmentHash, f.Reference().Hash)
}

func TestDecodeMultiple(t *testing.T) {
	m := map[string]any{
		"type":   "Release",
		"fields": map[string]any{"name": "v1"},
		"predecessors": map[string]any{
			"prior": []any{
				map[string]any{"type": "Environment", "hash": environmentHash},
				map[string]any{"type": "Jinaga.User", "hash": userHash},
			},
			"creator": map[string]any{"type": "Jinaga.User", "hash": userHash},
		},
	}

	f, err := Decode(m)
	require.NoError(t, err)
	assert.Equal(t, releaseHash, f.Reference().Hash)

	p, ok := f.Predecessor("prior")
	require.True(t, ok)
	assert.True(t, p.IsMultiple())
}

func TestDecodeWrongHash(t *testing.T) {
	user := testUser(t)
	m := user.Encode()
	m["hash"] = environmentHash

	_, err := Decode(m)
	assert.True(t, IsIntegrityError(err))
}

func TestDecodeRejectsNestedFieldValues(t *testing.T) {
	_, err := Decode(map[string]any{
		"type":   "X",
		"fields": map[string]any{"nested": map[string]any{"a": 1}},
	})
	require.Error(t, err)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}
