// Package entity reads business-entity mentions from the knowledge graph.
// The per-message counts feed the relevance scorer's entity factor.
package entity

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Ref identifies a business entity node.
type Ref struct {
	Kind string `json:"kind"` // e.g. "company", "product", "budget"
	Name string `json:"name"`
}

// Key returns the normalized identity used to merge entity nodes.
func (r Ref) Key() string {
	return strings.ToLower(strings.TrimSpace(r.Kind)) + ":" + strings.ToLower(strings.TrimSpace(r.Name))
}

// Graph counts entity mentions per message in Neo4j.
type Graph struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewGraph creates a Graph backed by a Neo4j driver.
func NewGraph(uri, user, password string, logger *zap.Logger) (*Graph, error) {
	auth := neo4j.NoAuth()
	if user != "" {
		auth = neo4j.BasicAuth(user, password, "")
	}
	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Graph{driver: driver, logger: logger}, nil
}

// Ping verifies the Neo4j connection.
func (g *Graph) Ping(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

// Close shuts down the Neo4j driver.
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// LinkEntity records that messageID mentions ref. Repeated links are idempotent.
func (g *Graph) LinkEntity(ctx context.Context, messageID string, ref Ref) error {
	if strings.TrimSpace(ref.Name) == "" {
		return fmt.Errorf("link entity: empty entity name for message %s", messageID)
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MERGE (m:Message {id: $messageId})
		 MERGE (e:Entity {key: $key})
		   ON CREATE SET e.kind = $kind, e.name = $name
		 MERGE (m)-[:MENTIONS]->(e)`,
		map[string]interface{}{
			"messageId": messageID,
			"key":       ref.Key(),
			"kind":      ref.Kind,
			"name":      ref.Name,
		})
	if err == nil {
		_, err = result.Consume(ctx)
	}
	if err != nil {
		return fmt.Errorf("link entity %s to %s: %w", ref.Key(), messageID, err)
	}
	return nil
}

// CountByMessage returns the number of distinct entities each message
// mentions. Every requested id is present in the result; unknown ids map to 0.
func (g *Graph) CountByMessage(ctx context.Context, messageIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(messageIDs))
	if len(messageIDs) == 0 {
		return counts, nil
	}
	for _, id := range messageIDs {
		counts[id] = 0
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`UNWIND $ids AS mid
		 OPTIONAL MATCH (:Message {id: mid})-[:MENTIONS]->(e:Entity)
		 RETURN mid AS id, count(DISTINCT e) AS entities`,
		map[string]interface{}{"ids": messageIDs})
	if err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}

	for result.Next(ctx) {
		rec := result.Record()
		id, _ := rec.Get("id")
		n, _ := rec.Get("entities")
		sid, ok := id.(string)
		if !ok {
			continue
		}
		if v, ok := n.(int64); ok {
			counts[sid] = int(v)
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}

	g.logger.Debug("entity counts loaded", zap.Int("messages", len(messageIDs)))
	return counts, nil
}
