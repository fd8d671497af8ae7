package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/basket/internal/config"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/store/sqlite"
)

const testBasket = `{
  "DataList": {
    "colors": {
      "uuid": "6f1c3a52-0b1e-4c3e-9a53-1f0f6e7b8a10",
      "owner": "admin",
      "entries": [
        {"entry_name": "red", "entry_value": "Red", "format": "string"},
        {"entry_name": "blue", "entry_value": "Blue", "format": "string"}
      ]
    },
    "shapes": {
      "uuid": "3c2b1a09-8f7e-4d6c-9b5a-4e3d2c1b0a99",
      "owner": "admin",
      "entries": []
    }
  },
  "Datafield": [
    {
      "varname": "color",
      "guid": "0b6c2f64-51d5-4a39-8f0b-3f0a9e1d7c22",
      "caption": "Color",
      "datatype": "Icinga\\Module\\Director\\DataType\\DataTypeDatalist",
      "settings": {"datalist": "colors", "behavior": "strict"}
    }
  ],
  "TimePeriod": {
    "work": {
      "object_type": "template",
      "ranges": {
        "monday": {"range_value": "09:00-17:00"},
        "thursday": {"range_value": "09:00-17:00"}
      }
    },
    "holidays": {
      "object_type": "template",
      "ranges": {"2026-12-24": {"range_value": "00:00-24:00"}}
    },
    "office": {
      "object_type": "template",
      "prefer_includes": "n",
      "includes": ["work"],
      "excludes": ["holidays"]
    }
  }
}`

// cliEnv isolates a test from the caller's BASKET_* environment and returns
// the path of a fresh SQLite database.
func cliEnv(t *testing.T) string {
	t.Helper()
	t.Setenv(config.EnvDB, "")
	t.Setenv(config.EnvDriver, "")
	t.Setenv(config.EnvLogLevel, "")
	return filepath.Join(t.TempDir(), "basket.db")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the CLI and returns stdout, stderr and the exit code.
func execute(args ...string) (string, string, int) {
	var out, errOut bytes.Buffer
	code := Execute(args, &out, &errOut)
	return out.String(), errOut.String(), code
}

// seed imports testBasket into db and fails the test unless it succeeds.
func seed(t *testing.T, db string) {
	t.Helper()
	basket := writeFile(t, "basket.json", testBasket)
	stdout, stderr, code := execute("import", "--db", db, basket)
	require.Equal(t, ExitSuccess, code, "stdout: %s\nstderr: %s", stdout, stderr)
}

// withSQLite opens db directly for arranging state the CLI cannot create.
func withSQLite(t *testing.T, db string, fn func(store.Store)) {
	t.Helper()
	s, err := sqlite.Open(db)
	require.NoError(t, err)
	defer s.Close()
	fn(s)
}
