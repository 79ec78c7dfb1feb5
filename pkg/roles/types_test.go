package roles

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum_OrderIndependent(t *testing.T) {
	statements := []string{
		"CREATE ROLE orders_app_reader NOLOGIN;",
		"GRANT USAGE ON SCHEMA app TO orders_app_reader;",
		"GRANT SELECT ON ALL TABLES IN SCHEMA app TO orders_app_reader;",
		"GRANT SELECT ON ALL SEQUENCES IN SCHEMA app TO orders_app_reader;",
	}

	want := Checksum(statements)

	shuffled := make([]string, len(statements))
	copy(shuffled, statements)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, want, Checksum(shuffled))
	}
}

func TestChecksum_ChangesWithContent(t *testing.T) {
	a := Checksum([]string{"CREATE ROLE x NOLOGIN;"})
	b := Checksum([]string{"CREATE ROLE y NOLOGIN;"})
	assert.NotEqual(t, a, b)
}

func TestDefinition_ChecksumValid(t *testing.T) {
	def := Definition{Statements: []string{"GRANT USAGE ON SCHEMA app TO r;"}}
	def.ComputeChecksum()
	assert.True(t, def.ChecksumValid())

	def.Statements = append(def.Statements, "GRANT SELECT ON ALL TABLES IN SCHEMA app TO r;")
	assert.False(t, def.ChecksumValid())
}

func TestDefinition_Outdated(t *testing.T) {
	def := Definition{Version: "1.0.0", Statements: []string{"GRANT USAGE ON SCHEMA app TO r;"}}
	def.ComputeChecksum()

	assert.False(t, def.Outdated("1.0.0", def.Checksum))
	assert.True(t, def.Outdated("1.1.0", def.Checksum))
	assert.True(t, def.Outdated("1.0.0", "deadbeef"))
}

func TestDefinition_MatchesSchema(t *testing.T) {
	schemaScoped := Definition{Name: "orders_app_reader"}
	assert.True(t, schemaScoped.MatchesSchema("orders", "app"))
	assert.False(t, schemaScoped.MatchesSchema("orders", "billing"))
	assert.False(t, schemaScoped.MatchesSchema("inventory", "app"))

	dbWide := Definition{Name: "orders_monitor", DatabaseWide: true}
	assert.True(t, dbWide.MatchesSchema("orders", "app"))
	assert.True(t, dbWide.MatchesSchema("orders", "billing"))
	assert.False(t, dbWide.MatchesSchema("inventory", "app"))
}

func TestRoleName(t *testing.T) {
	assert.Equal(t, "orders_app_reader", RoleName("orders", "app", "reader"))
	assert.Equal(t, "orders_monitor", DatabaseRoleName("orders", "monitor"))
}

func TestStandardProvider_Definitions(t *testing.T) {
	p := NewStandardProvider()
	defs := p.Definitions("orders", "app")
	require.Len(t, defs, 6)

	byName := make(map[string]Definition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}

	require.Contains(t, byName, "orders_app_reader")
	require.Contains(t, byName, "orders_app_writer")
	require.Contains(t, byName, "orders_app_admin")
	require.Contains(t, byName, "orders_app_analyst")
	require.Contains(t, byName, "orders_monitor")
	require.Contains(t, byName, "orders_dba_agent")

	writer := byName["orders_app_writer"]
	assert.Equal(t, []string{"orders_app_reader"}, writer.Inherits)

	admin := byName["orders_app_admin"]
	assert.Equal(t, []string{"orders_app_writer"}, admin.Inherits)

	monitor := byName["orders_monitor"]
	assert.True(t, monitor.DatabaseWide)
	assert.Contains(t, monitor.NativeRoles, "pg_monitor")

	for _, def := range defs {
		assert.True(t, def.ChecksumValid(), def.Name)
		assert.Equal(t, StatusActive, def.Status, def.Name)
		assert.NoError(t, Validate(def), def.Name)
	}
}

func TestRegistry_RegisterAndMerge(t *testing.T) {
	defer func() {
		_ = Unregister("standard_roles")
	}()

	require.NoError(t, Register(NewStandardProvider()))
	assert.Error(t, Register(NewStandardProvider()), "duplicate registration must fail")

	defs := Definitions("orders", "app")
	assert.Len(t, defs, 6)

	def, ok := Lookup("orders", "app", "orders_app_reader")
	require.True(t, ok)
	assert.Equal(t, "orders_app_reader", def.Name)

	_, ok = Lookup("orders", "app", "orders_app_ghost")
	assert.False(t, ok)
}
