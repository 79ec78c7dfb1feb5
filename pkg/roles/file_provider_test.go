package roles

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
roles:
  - name: "{database}_{schema}_auditor"
    version: "1.2.0"
    description: "Audit access"
    statements:
      - "CREATE ROLE {database}_{schema}_auditor NOLOGIN;"
      - "GRANT USAGE ON SCHEMA {schema} TO {database}_{schema}_auditor;"
      - "GRANT SELECT ON ALL TABLES IN SCHEMA {schema} TO {database}_{schema}_auditor;"
  - name: "{database}_backup"
    version: "1.0.0"
    database_wide: true
    statements:
      - "CREATE ROLE {database}_backup NOLOGIN;"
      - "GRANT pg_read_all_data TO {database}_backup;"
  - name: "{database}_{schema}_root"
    version: "1.0.0"
    statements:
      - "ALTER ROLE {database}_{schema}_root SUPERUSER;"
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestFileProvider_Load(t *testing.T) {
	path := writeCatalog(t, testCatalog)

	p, err := NewFileProvider(path, newTestLogger())
	require.NoError(t, err)
	defer p.Close()

	defs := p.Definitions("orders", "app")
	require.Len(t, defs, 2, "superuser role must be rejected at load")

	byName := make(map[string]Definition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}

	auditor, ok := byName["orders_app_auditor"]
	require.True(t, ok)
	assert.Equal(t, "1.2.0", auditor.Version)
	assert.Contains(t, auditor.Statements, "GRANT USAGE ON SCHEMA app TO orders_app_auditor;")
	assert.True(t, auditor.ChecksumValid())
	assert.Equal(t, StatusActive, auditor.Status)

	backup, ok := byName["orders_backup"]
	require.True(t, ok)
	assert.True(t, backup.DatabaseWide)
}

func TestFileProvider_ExpansionPerDatabase(t *testing.T) {
	path := writeCatalog(t, testCatalog)

	p, err := NewFileProvider(path, newTestLogger())
	require.NoError(t, err)
	defer p.Close()

	a := p.Definitions("orders", "app")
	b := p.Definitions("inventory", "stock")

	assert.Equal(t, "orders_app_auditor", a[0].Name)
	assert.Equal(t, "inventory_stock_auditor", b[0].Name)
}

func TestFileProvider_Reload(t *testing.T) {
	path := writeCatalog(t, testCatalog)

	p, err := NewFileProvider(path, newTestLogger())
	require.NoError(t, err)
	defer p.Close()

	require.Len(t, p.Definitions("orders", "app"), 2)

	updated := `
roles:
  - name: "{database}_{schema}_auditor"
    version: "1.3.0"
    statements:
      - "CREATE ROLE {database}_{schema}_auditor NOLOGIN;"
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	// The watcher delivers asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		defs := p.Definitions("orders", "app")
		if len(defs) == 1 && defs[0].Version == "1.3.0" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("catalog was not reloaded after file change")
}

func TestFileProvider_MissingFile(t *testing.T) {
	_, err := NewFileProvider(filepath.Join(t.TempDir(), "absent.yaml"), newTestLogger())
	assert.Error(t, err)
}

func TestFileProvider_InvalidYAML(t *testing.T) {
	path := writeCatalog(t, "roles: [unclosed")
	_, err := NewFileProvider(path, newTestLogger())
	assert.Error(t, err)
}

func TestStaticFileProvider_NoReload(t *testing.T) {
	path := writeCatalog(t, testCatalog)

	p, err := NewStaticFileProvider(path, newTestLogger())
	require.NoError(t, err)
	defer p.Close()

	require.Len(t, p.Definitions("orders", "app"), 2)

	updated := `
roles:
  - name: "{database}_{schema}_auditor"
    version: "1.3.0"
    statements:
      - "CREATE ROLE {database}_{schema}_auditor NOLOGIN;"
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))
	time.Sleep(100 * time.Millisecond)

	defs := p.Definitions("orders", "app")
	require.Len(t, defs, 2, "static provider must not pick up file changes")
}
