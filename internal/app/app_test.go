package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	supastore "github.com/typemate/typemate/internal/store/supabase"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[store]
driver = "memory"

[auth]
mode = "header"
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("LLM_MODEL", "gpt-4o")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, `
[store]
driver = "cassandra"
`))
	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestNew_MemoryDriver(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, `
[store]
driver = "memory"

[auth]
mode = "header"

[llm]
provider = "openai"
api_key = "sk-test"
`))
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.NotNil(t, a.Chat)
	assert.NotNil(t, a.Embedder)
	assert.Nil(t, a.Supabase)
	assert.Len(t, a.Personas.All(), 16)
}

func TestNew_ClaudeHasNoEmbedder(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, `
[store]
driver = "memory"

[auth]
mode = "header"

[llm]
provider = "claude"
api_key = "test"
`))
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Nil(t, a.Embedder)
	assert.Nil(t, a.Vector.GenerateEmbedding(context.Background(), "hello"))
}

func TestNew_SupabaseStoreSharesClient(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, `
[store]
driver = "supabase"

[supabase]
url = "http://127.0.0.1:54321"
service_role_key = "service-key"

[llm]
provider = "openai"
api_key = "sk-test"
`))
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	require.NotNil(t, a.Supabase)
	st, ok := a.Store.(*supastore.Store)
	require.True(t, ok)
	assert.Same(t, a.Supabase, st.Client())
}

func TestOpenStore_SupabaseWithoutClient(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
[store]
driver = "memory"

[auth]
mode = "header"
`))
	require.NoError(t, err)
	cfg.Store.Driver = "supabase"

	_, err = OpenStore(context.Background(), cfg, nil, zap.NewNop())
	assert.Error(t, err)
}
