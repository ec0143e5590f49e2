package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"github.com/lorekeep/lorekeep/internal/util"
	"github.com/lorekeep/lorekeep/pkg/logger"
)

// GraphNeo4jStore implements store.GraphStore on a Neo4j database. Nodes
// carry the label KnowledgeNode; relationship types mirror the closed
// knowledge.RelationType enum.
type GraphNeo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewGraphNeo4jStoreParams configures the connection. Database defaults
// to "neo4j" when empty.
type NewGraphNeo4jStoreParams struct {
	URI      string
	Username string
	Password string
	Database string

	MaxConnectionPoolSize int
	ConnectionTimeout     time.Duration
}

// NewGraphNeo4jStore connects to Neo4j and verifies connectivity. A
// store that cannot reach its database is useless, so connectivity
// failure is returned as a fatal construction error.
func NewGraphNeo4jStore(ctx context.Context, params NewGraphNeo4jStoreParams) (*GraphNeo4jStore, error) {
	if params.URI == "" {
		return nil, fmt.Errorf("neo4j URI is empty")
	}
	if params.Database == "" {
		params.Database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(
		params.URI,
		neo4j.BasicAuth(params.Username, params.Password, ""),
		func(c *config.Config) {
			if params.MaxConnectionPoolSize > 0 {
				c.MaxConnectionPoolSize = params.MaxConnectionPoolSize
			}
			if params.ConnectionTimeout > 0 {
				c.SocketConnectTimeout = params.ConnectionTimeout
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}

	logger.Info("[Store] Connected to Neo4j", "uri", params.URI, "database", params.Database)

	return &GraphNeo4jStore{
		driver:   driver,
		database: params.Database,
	}, nil
}

// NewGraphNeo4jStoreFromEnv builds connection parameters from the
// environment.
func NewGraphNeo4jStoreFromEnv(ctx context.Context) (*GraphNeo4jStore, error) {
	return NewGraphNeo4jStore(ctx, NewGraphNeo4jStoreParams{
		URI:      util.GetEnv("NEO4J_URI"),
		Username: util.GetEnv("NEO4J_USER"),
		Password: util.GetEnv("NEO4J_PASSWORD"),
		Database: util.GetEnvString("NEO4J_DATABASE", "neo4j"),

		MaxConnectionPoolSize: int(util.GetEnvNumeric("NEO4J_POOL_SIZE", 50)),
		ConnectionTimeout:     time.Duration(util.GetEnvNumeric("NEO4J_CONNECT_TIMEOUT_SEC", 10)) * time.Second,
	})
}

// Close releases the underlying driver.
func (s *GraphNeo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Query runs a raw parameterized Cypher statement. Escape hatch for
// callers needing traversals the GraphStore interface does not cover.
func (s *GraphNeo4jStore) Query(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return s.run(ctx, query, params)
}

func (s *GraphNeo4jStore) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(
		ctx,
		s.driver,
		query,
		params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
	)
}
