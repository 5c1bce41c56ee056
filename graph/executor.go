// Package graph is the client for the property graph that records which
// user uploaded which content.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Runner executes Cypher and returns fully buffered results. It abstracts
// the driver so tests can substitute canned answers.
type Runner interface {
	RunQuery(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
	ReadQuery(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// Neo4jExecutor runs every query inside its own session borrowed from the
// driver's connection pool.
type Neo4jExecutor struct {
	Driver neo4j.DriverWithContext
	DBName string
}

// PoolOptions sizes the driver's connection pool.
type PoolOptions struct {
	MaxConnectionPoolSize        int
	ConnectionAcquisitionTimeout time.Duration
}

// NewNeo4jExecutor creates the driver. It does not contact the server;
// call VerifyConnectivity for that.
func NewNeo4jExecutor(uri, username, password, dbName string, pool PoolOptions) (*Neo4jExecutor, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""), func(c *neo4j.Config) {
		if pool.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = pool.MaxConnectionPoolSize
		}
		if pool.ConnectionAcquisitionTimeout > 0 {
			c.ConnectionAcquisitionTimeout = pool.ConnectionAcquisitionTimeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	return &Neo4jExecutor{Driver: driver, DBName: dbName}, nil
}

func (e *Neo4jExecutor) VerifyConnectivity(ctx context.Context) error {
	return e.Driver.VerifyConnectivity(ctx)
}

func (e *Neo4jExecutor) Close(ctx context.Context) error {
	return e.Driver.Close(ctx)
}

// RunQuery executes query in a managed write transaction.
func (e *Neo4jExecutor) RunQuery(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return e.run(ctx, neo4j.AccessModeWrite, query, params)
}

// ReadQuery executes query in a managed read transaction.
func (e *Neo4jExecutor) ReadQuery(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return e.run(ctx, neo4j.AccessModeRead, query, params)
}

func (e *Neo4jExecutor) run(ctx context.Context, mode neo4j.AccessMode, query string, params map[string]any) (*neo4j.EagerResult, error) {
	session := e.Driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: e.DBName, AccessMode: mode})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		keys, err := res.Keys()
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return &neo4j.EagerResult{Keys: keys, Records: records, Summary: summary}, nil
	}

	var (
		out any
		err error
	)
	if mode == neo4j.AccessModeRead {
		out, err = session.ExecuteRead(ctx, work)
	} else {
		out, err = session.ExecuteWrite(ctx, work)
	}
	if err != nil {
		return nil, err
	}
	return out.(*neo4j.EagerResult), nil
}
