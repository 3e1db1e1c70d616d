package env_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/devrun/devrun/internal/env"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()
	ambient := []string{"HOME=/home/dev", "PATH=/usr/bin", "DATABASE_URL=postgres://ambient"}

	var testCases = []struct {
		scenario string
		content  string
		then     map[string]string
		fileKeys []string
	}{
		{
			scenario: "empty file",
			content:  "",
			then: map[string]string{
				"HOME":         "/home/dev",
				"PATH":         "/usr/bin",
				"DATABASE_URL": "postgres://ambient",
			},
			fileKeys: []string{},
		},
		{
			scenario: "file wins on collision",
			content:  "DATABASE_URL=postgres://file\nAPI_KEY=secret\n",
			then: map[string]string{
				"HOME":         "/home/dev",
				"PATH":         "/usr/bin",
				"DATABASE_URL": "postgres://file",
				"API_KEY":      "secret",
			},
			fileKeys: []string{"API_KEY", "DATABASE_URL"},
		},
		{
			scenario: "comments quoting and export",
			content:  "# comment\nexport PORT=8080\nGREETING=\"hello world\"\n\n",
			then: map[string]string{
				"HOME":         "/home/dev",
				"PATH":         "/usr/bin",
				"DATABASE_URL": "postgres://ambient",
				"PORT":         "8080",
				"GREETING":     "hello world",
			},
			fileKeys: []string{"GREETING", "PORT"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, tc.content)
			overlay, err := env.Load(path, ambient)
			require.NoError(t, err)
			require.Equal(t, len(tc.then), overlay.Len())
			for k, v := range tc.then {
				got, ok := overlay.Lookup(k)
				require.True(t, ok, k)
				require.Equal(t, v, got, k)
			}
			require.ElementsMatch(t, tc.fileKeys, overlay.FileKeys())
		})
	}
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()
	ambient := []string{"B=2", "A=1"}

	overlay, err := env.Load(filepath.Join(t.TempDir(), ".env"), ambient)
	require.NoError(t, err)
	require.Equal(t, []string{"A=1", "B=2"}, overlay.Environ())
	require.Empty(t, overlay.FileKeys())

	overlay, err = env.Load("", ambient)
	require.NoError(t, err)
	require.Equal(t, []string{"A=1", "B=2"}, overlay.Environ())
}

func TestLoadDirectory(t *testing.T) {
	t.Parallel()
	_, err := env.Load(t.TempDir(), nil)
	require.Error(t, err)
}

func TestFromEnviron(t *testing.T) {
	t.Parallel()
	overlay := env.FromEnviron([]string{"A=1", "broken", "=nokey", "B=x=y", "A=2"})
	require.Equal(t, []string{"A=2", "B=x=y"}, overlay.Environ())
}

func TestWithDoesNotMutate(t *testing.T) {
	t.Parallel()
	base := env.FromEnviron([]string{"A=1"})
	next := base.With(map[string]string{"A": "2", "B": "3"})

	v, _ := base.Lookup("A")
	require.Equal(t, "1", v)
	_, ok := base.Lookup("B")
	require.False(t, ok)

	require.Equal(t, []string{"A=2", "B=3"}, next.Environ())

	environ := next.Environ()
	environ[0] = "A=mutated"
	require.Equal(t, []string{"A=2", "B=3"}, next.Environ())
}
