package neo4j

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
)

const tracerName = "github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/neo4j"

const (
	userExistsCypher = `MATCH (u:User {id: $id}) RETURN count(u) > 0 AS found`

	userStatsCypher = `MATCH (u:User {id: $id})
RETURN u.followers AS followers, u.following AS following, u.views AS views`

	edgeExistsCypher = `MATCH (:User {id: $from})-[r:FOLLOWS]->(:User {id: $to})
RETURN count(r) > 0 AS found`

	listFollowingCypher = `MATCH (:User {id: $id})-[r:FOLLOWS]->(other:User)
RETURN other.id AS userId, r.followedAt AS followedAt`

	listFollowersCypher = `MATCH (:User {id: $id})<-[r:FOLLOWS]-(other:User)
RETURN other.id AS userId, r.followedAt AS followedAt`
)

// GraphRepository implements social.Repository on Neo4j.
//
// WriteMultiPath runs in one managed write transaction, so an update lands
// whole or not at all. Counter values are still computed from an earlier
// read, which leaves the read-then-write window open.
type GraphRepository struct {
	driver   neo4j.DriverWithContext
	database string
	tracer   trace.Tracer
}

// Compile-time interface check.
var _ social.Repository = (*GraphRepository)(nil)

// NewGraphRepository creates a repository. An empty database uses the
// server default.
func NewGraphRepository(driver neo4j.DriverWithContext, database string) *GraphRepository {
	return &GraphRepository{
		driver:   driver,
		database: database,
		tracer:   otel.Tracer(tracerName),
	}
}

// Ping verifies connectivity.
func (r *GraphRepository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

// UserExists implements social.GraphRepository.
func (r *GraphRepository) UserExists(ctx context.Context, id social.UserID) (bool, error) {
	ctx, span := r.start(ctx, "UserExists", attribute.String("user.id", id.String()))
	defer span.End()

	found, err := r.readBool(ctx, userExistsCypher, map[string]any{"id": id.String()})
	if err != nil {
		return false, r.fail(span, "UserExists", err)
	}
	return found, nil
}

// GetUserStats implements social.GraphRepository.
func (r *GraphRepository) GetUserStats(ctx context.Context, id social.UserID) (social.Stats, bool, error) {
	ctx, span := r.start(ctx, "GetUserStats", attribute.String("user.id", id.String()))
	defer span.End()

	type result struct {
		stats social.Stats
		found bool
	}
	res, err := r.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rec, err := single(ctx, tx, userStatsCypher, map[string]any{"id": id.String()})
		if err != nil || rec == nil {
			return result{}, err
		}
		var out result
		for _, f := range []struct {
			key string
			dst *int64
		}{
			{social.FieldFollowers, &out.stats.Followers},
			{social.FieldFollowing, &out.stats.Following},
			{social.FieldViews, &out.stats.Views},
		} {
			v, isNil, err := neo4j.GetRecordValue[int64](rec, f.key)
			if err != nil {
				return nil, err
			}
			if !isNil {
				*f.dst = v
				out.found = true
			}
		}
		return out, nil
	})
	if err != nil {
		return social.Stats{}, false, r.fail(span, "GetUserStats", err)
	}
	got := res.(result)
	return got.stats, got.found, nil
}

// EdgeExists implements social.GraphRepository.
func (r *GraphRepository) EdgeExists(ctx context.Context, followerID, followingID social.UserID) (bool, error) {
	ctx, span := r.start(ctx, "EdgeExists",
		attribute.String("follower.id", followerID.String()),
		attribute.String("following.id", followingID.String()),
	)
	defer span.End()

	found, err := r.readBool(ctx, edgeExistsCypher, map[string]any{
		"from": followerID.String(),
		"to":   followingID.String(),
	})
	if err != nil {
		return false, r.fail(span, "EdgeExists", err)
	}
	return found, nil
}

// WriteMultiPath implements social.GraphRepository.
func (r *GraphRepository) WriteMultiPath(ctx context.Context, update social.MultiPathUpdate) error {
	ctx, span := r.start(ctx, "WriteMultiPath", attribute.Int("update.paths", len(update)))
	defer span.End()

	stmts, err := Translate(update)
	if err != nil {
		return r.fail(span, "WriteMultiPath", err)
	}
	if len(stmts) == 0 {
		return nil
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: r.database})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, s := range stmts {
			res, err := tx.Run(ctx, s.Cypher, s.Params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return r.fail(span, "WriteMultiPath", err)
	}
	return nil
}

// ListFollowing implements social.EdgeReader.
func (r *GraphRepository) ListFollowing(ctx context.Context, id social.UserID) ([]social.Edge, error) {
	return r.listEdges(ctx, "ListFollowing", listFollowingCypher, id)
}

// ListFollowers implements social.EdgeReader.
func (r *GraphRepository) ListFollowers(ctx context.Context, id social.UserID) ([]social.Edge, error) {
	return r.listEdges(ctx, "ListFollowers", listFollowersCypher, id)
}

func (r *GraphRepository) listEdges(ctx context.Context, op, cypher string, id social.UserID) ([]social.Edge, error) {
	ctx, span := r.start(ctx, op, attribute.String("user.id", id.String()))
	defer span.End()

	res, err := r.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cursor, err := tx.Run(ctx, cypher, map[string]any{"id": id.String()})
		if err != nil {
			return nil, err
		}
		edges := []social.Edge{}
		for cursor.Next(ctx) {
			rec := cursor.Record()
			userID, _, err := neo4j.GetRecordValue[string](rec, "userId")
			if err != nil {
				return nil, err
			}
			followedAt, _, err := neo4j.GetRecordValue[string](rec, "followedAt")
			if err != nil {
				return nil, err
			}
			edges = append(edges, social.Edge{UserID: social.UserID(userID), FollowedAt: followedAt})
		}
		return edges, cursor.Err()
	})
	if err != nil {
		return nil, r.fail(span, op, err)
	}
	edges := res.([]social.Edge)
	social.SortEdges(edges)
	return edges, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

func (r *GraphRepository) read(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead, DatabaseName: r.database})
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

func (r *GraphRepository) readBool(ctx context.Context, cypher string, params map[string]any) (bool, error) {
	res, err := r.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rec, err := single(ctx, tx, cypher, params)
		if err != nil || rec == nil {
			return false, err
		}
		found, _, err := neo4j.GetRecordValue[bool](rec, "found")
		return found, err
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// single returns the first record of a query, or nil when there is none.
func single(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) (*neo4j.Record, error) {
	cursor, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	if cursor.Next(ctx) {
		return cursor.Record(), nil
	}
	return nil, cursor.Err()
}

func (r *GraphRepository) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "neo4j."+op, trace.WithAttributes(attrs...))
}

func (r *GraphRepository) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return shared.StoreFailure("social", op, err)
}
