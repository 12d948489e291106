package document

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/internal/domain/social"
)

const tracerName = "github.com/armstrong-haulage/community-hub/internal/infrastructure/persistence/document"

// GraphRepository implements social.Repository over any document Store.
// Every store failure is reported as a shared.ErrStore domain error.
type GraphRepository struct {
	store  Store
	tracer trace.Tracer
}

// Compile-time interface check.
var _ social.Repository = (*GraphRepository)(nil)

// NewGraphRepository creates a repository over store.
func NewGraphRepository(store Store) *GraphRepository {
	return &GraphRepository{
		store:  store,
		tracer: otel.Tracer(tracerName),
	}
}

// Store returns the underlying tree.
func (r *GraphRepository) Store() Store {
	return r.store
}

func (r *GraphRepository) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "document."+op, trace.WithAttributes(attrs...))
}

func (r *GraphRepository) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return shared.StoreFailure("social", op, err)
}

// UserExists implements social.GraphRepository.
func (r *GraphRepository) UserExists(ctx context.Context, id social.UserID) (bool, error) {
	ctx, span := r.start(ctx, "UserExists", attribute.String("user.id", id.String()))
	defer span.End()

	ok, err := r.store.Exists(ctx, social.UserPath(id))
	if err != nil {
		return false, r.fail(span, "UserExists", err)
	}
	return ok, nil
}

// GetUserStats implements social.GraphRepository.
func (r *GraphRepository) GetUserStats(ctx context.Context, id social.UserID) (social.Stats, bool, error) {
	ctx, span := r.start(ctx, "GetUserStats", attribute.String("user.id", id.String()))
	defer span.End()

	node, err := r.store.Get(ctx, social.StatsPath(id))
	if err != nil {
		return social.Stats{}, false, r.fail(span, "GetUserStats", err)
	}
	if node == nil {
		return social.Stats{}, false, nil
	}
	return social.StatsFromNode(node), true, nil
}

// EdgeExists implements social.GraphRepository.
func (r *GraphRepository) EdgeExists(ctx context.Context, followerID, followingID social.UserID) (bool, error) {
	ctx, span := r.start(ctx, "EdgeExists",
		attribute.String("follower.id", followerID.String()),
		attribute.String("following.id", followingID.String()),
	)
	defer span.End()

	ok, err := r.store.Exists(ctx, social.FollowingPath(followerID, followingID))
	if err != nil {
		return false, r.fail(span, "EdgeExists", err)
	}
	return ok, nil
}

// WriteMultiPath implements social.GraphRepository.
func (r *GraphRepository) WriteMultiPath(ctx context.Context, update social.MultiPathUpdate) error {
	ctx, span := r.start(ctx, "WriteMultiPath", attribute.Int("update.paths", len(update)))
	defer span.End()

	if err := r.store.Update(ctx, map[string]any(update)); err != nil {
		return r.fail(span, "WriteMultiPath", err)
	}
	return nil
}

// ListFollowing implements social.EdgeReader.
func (r *GraphRepository) ListFollowing(ctx context.Context, id social.UserID) ([]social.Edge, error) {
	return r.listEdges(ctx, "ListFollowing", social.FollowingSetPath(id))
}

// ListFollowers implements social.EdgeReader.
func (r *GraphRepository) ListFollowers(ctx context.Context, id social.UserID) ([]social.Edge, error) {
	return r.listEdges(ctx, "ListFollowers", social.FollowersSetPath(id))
}

func (r *GraphRepository) listEdges(ctx context.Context, op, path string) ([]social.Edge, error) {
	ctx, span := r.start(ctx, op, attribute.String("tree.path", path))
	defer span.End()

	node, err := r.store.Get(ctx, path)
	if err != nil {
		return nil, r.fail(span, op, err)
	}
	edges := social.EdgesFromNode(node)
	if edges == nil {
		edges = []social.Edge{}
	}
	return edges, nil
}
