package roles

import (
	"fmt"
	"time"
)

// StandardProvider supplies the built-in role set:
//
//	{db}_{schema}_reader   read-only access to the schema
//	{db}_{schema}_writer   write access, inherits reader
//	{db}_{schema}_admin    schema administration, inherits writer
//	{db}_{schema}_analyst  analytics access, inherits reader + stat views
//	{db}_monitor           database-wide monitoring via pg_monitor
//	{db}_dba_agent         database-wide DBA agent monitoring
type StandardProvider struct{}

// NewStandardProvider returns the provider for the standard role set.
func NewStandardProvider() *StandardProvider {
	return &StandardProvider{}
}

// Name implements Provider.
func (p *StandardProvider) Name() string { return "standard_roles" }

// Definitions implements Provider.
func (p *StandardProvider) Definitions(database, schema string) []Definition {
	return []Definition{
		p.readerRole(database, schema),
		p.writerRole(database, schema),
		p.adminRole(database, schema),
		p.analystRole(database, schema),
		p.monitorRole(database),
		p.dbaAgentRole(database),
	}
}

func (p *StandardProvider) readerRole(database, schema string) Definition {
	name := RoleName(database, schema, "reader")
	statements := []string{
		fmt.Sprintf("CREATE ROLE %s NOLOGIN;", name),
		fmt.Sprintf("GRANT USAGE ON SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("GRANT SELECT ON ALL TABLES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("GRANT SELECT ON ALL SEQUENCES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT SELECT ON TABLES TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT SELECT ON SEQUENCES TO %s;", schema, name),
	}
	return p.definition(name, statements, nil, nil,
		fmt.Sprintf("Read-only access to the %s schema in %s", schema, database), false)
}

func (p *StandardProvider) writerRole(database, schema string) Definition {
	name := RoleName(database, schema, "writer")
	reader := RoleName(database, schema, "reader")
	statements := []string{
		fmt.Sprintf("CREATE ROLE %s NOLOGIN;", name),
		fmt.Sprintf("GRANT %s TO %s;", reader, name),
		fmt.Sprintf("GRANT INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("GRANT USAGE ON ALL SEQUENCES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT INSERT, UPDATE, DELETE ON TABLES TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT USAGE ON SEQUENCES TO %s;", schema, name),
	}
	return p.definition(name, statements, []string{reader}, nil,
		fmt.Sprintf("Write access to the %s schema in %s (inherits %s)", schema, database, reader), false)
}

func (p *StandardProvider) adminRole(database, schema string) Definition {
	name := RoleName(database, schema, "admin")
	writer := RoleName(database, schema, "writer")
	statements := []string{
		fmt.Sprintf("CREATE ROLE %s NOLOGIN;", name),
		fmt.Sprintf("GRANT %s TO %s;", writer, name),
		fmt.Sprintf("GRANT CREATE ON SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL TABLES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL SEQUENCES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT ALL PRIVILEGES ON TABLES TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT ALL PRIVILEGES ON SEQUENCES TO %s;", schema, name),
	}
	return p.definition(name, statements, []string{writer}, nil,
		fmt.Sprintf("Administrative access to the %s schema in %s (inherits %s)", schema, database, writer), false)
}

func (p *StandardProvider) analystRole(database, schema string) Definition {
	name := RoleName(database, schema, "analyst")
	reader := RoleName(database, schema, "reader")
	statements := []string{
		fmt.Sprintf("CREATE ROLE %s NOLOGIN;", name),
		fmt.Sprintf("GRANT %s TO %s;", reader, name),
		fmt.Sprintf("GRANT pg_read_all_stats TO %s;", name),
	}
	return p.definition(name, statements, []string{reader}, []string{"pg_read_all_stats"},
		fmt.Sprintf("Analytics access to the %s schema in %s (inherits %s)", schema, database, reader), false)
}

func (p *StandardProvider) monitorRole(database string) Definition {
	name := DatabaseRoleName(database, "monitor")
	statements := []string{
		fmt.Sprintf("CREATE ROLE %s NOLOGIN;", name),
		fmt.Sprintf("GRANT pg_monitor TO %s;", name),
		fmt.Sprintf("GRANT pg_read_all_stats TO %s;", name),
		fmt.Sprintf("GRANT pg_read_all_settings TO %s;", name),
	}
	return p.definition(name, statements, nil,
		[]string{"pg_monitor", "pg_read_all_stats", "pg_read_all_settings"},
		fmt.Sprintf("Monitoring access for the %s database", database), true)
}

func (p *StandardProvider) dbaAgentRole(database string) Definition {
	name := DatabaseRoleName(database, "dba_agent")
	statements := []string{
		fmt.Sprintf("CREATE ROLE %s NOLOGIN;", name),
		fmt.Sprintf("GRANT pg_monitor TO %s;", name),
		fmt.Sprintf("GRANT pg_read_all_settings TO %s;", name),
		fmt.Sprintf("GRANT pg_stat_scan_tables TO %s;", name),
	}
	return p.definition(name, statements, nil,
		[]string{"pg_monitor", "pg_read_all_settings", "pg_stat_scan_tables"},
		fmt.Sprintf("DBA agent monitoring access for the %s database", database), true)
}

func (p *StandardProvider) definition(name string, statements, inherits, native []string, description string, databaseWide bool) Definition {
	def := Definition{
		Name:         name,
		Version:      "1.0.0",
		Statements:   statements,
		Inherits:     inherits,
		NativeRoles:  native,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
		Status:       StatusActive,
		DatabaseWide: databaseWide,
	}
	def.ComputeChecksum()
	return def
}
