package config

type PostgresConfig struct {
	// libpq key/value connection parameters, e.g. host, port, user, password, dbname, sslmode
	Connection map[string]string
	// Maximum number of pooled connections, zero uses the pgx default
	MaxConns int32
}

type SqliteConfig struct {
	// Path to the database file, or ":memory:"
	Path string `validate:"required"`
}

type Neo4jConfig struct {
	// Bolt or neo4j URI, e.g. neo4j://localhost:7687
	Uri      string `validate:"required"`
	Username string
	Password string
	// Target database, empty uses the server default
	Database string
}
