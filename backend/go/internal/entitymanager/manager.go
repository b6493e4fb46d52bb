package entitymanager

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"jaqpot/backend/go/internal/models"
)

// MaxPageSize caps the limit of FindAll, FindBy and friends.
const MaxPageSize = 500

// Manager is the single read/write path to the document store. It holds no
// mutable state and is safe for concurrent use; per-kind access goes through
// a Repository.
type Manager struct {
	db       *mongo.Database
	registry *Registry
	codec    Codec
}

// New creates a Manager. A nil codec selects NewBSONCodec.
func New(db *mongo.Database, registry *Registry, codec Codec) *Manager {
	if codec == nil {
		codec = NewBSONCodec()
	}
	return &Manager{db: db, registry: registry, codec: codec}
}

// Registry returns the kind registry the manager resolves collections with.
func (m *Manager) Registry() *Registry { return m.registry }

// EntityPointer constrains P to be *T and to implement models.Entity.
type EntityPointer[T any] interface {
	*T
	models.Entity
}

// Repository is the typed view of the manager for one entity kind.
type Repository[T any, P EntityPointer[T]] struct {
	kind  models.Kind
	coll  *mongo.Collection
	codec Codec
}

// NewRepository resolves T's collection through the registry.
func NewRepository[T any, P EntityPointer[T]](m *Manager) (*Repository[T, P], error) {
	var zero T
	kind := P(&zero).Kind()
	name, err := m.registry.CollectionName(kind)
	if err != nil {
		return nil, err
	}
	return &Repository[T, P]{
		kind:  kind,
		coll:  m.db.Collection(name),
		codec: m.codec,
	}, nil
}

// MustRepository is NewRepository that panics for unregistered kinds.
func MustRepository[T any, P EntityPointer[T]](m *Manager) *Repository[T, P] {
	r, err := NewRepository[T, P](m)
	if err != nil {
		panic(err)
	}
	return r
}

// Kind returns the entity kind served by the repository.
func (r *Repository[T, P]) Kind() models.Kind { return r.kind }

// CollectionName returns the backing collection name.
func (r *Repository[T, P]) CollectionName() string { return r.coll.Name() }

// Persist inserts e as a new document.
func (r *Repository[T, P]) Persist(ctx context.Context, e P) error {
	doc, err := r.encode(e)
	if err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return r.wrap("persist", e.GetID(), err)
	}
	return nil
}

// Find fetches the entity with the given id.
func (r *Repository[T, P]) Find(ctx context.Context, id string) (*T, error) {
	raw, err := r.coll.FindOne(ctx, byID(id)).Raw()
	if err != nil {
		return nil, r.wrap("find", id, err)
	}
	return r.decode(raw)
}

// Exists reports whether a document with the given id is stored.
func (r *Repository[T, P]) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, byID(id), options.Count().SetLimit(1))
	if err != nil {
		return false, r.wrap("exists", id, err)
	}
	return n > 0, nil
}

// Merge replaces the stored document with e and returns the entity as it was
// immediately before. It never inserts.
func (r *Repository[T, P]) Merge(ctx context.Context, e P) (*T, error) {
	doc, err := r.encode(e)
	if err != nil {
		return nil, err
	}
	raw, err := r.replace(ctx, byID(e.GetID()), doc)
	if err != nil {
		return nil, r.wrap("merge", e.GetID(), err)
	}
	return r.decode(raw)
}

// MergeIf is Merge restricted to a stored document that also matches guard.
// When nothing matched, ErrNotFound and ErrPreconditionFailed are told apart
// with one extra lookup.
func (r *Repository[T, P]) MergeIf(ctx context.Context, e P, guard Criteria) (*T, error) {
	doc, err := r.encode(e)
	if err != nil {
		return nil, err
	}
	extra, err := guard.Filter()
	if err != nil {
		return nil, err
	}
	filter := append(byID(e.GetID()), extra...)

	raw, err := r.replace(ctx, filter, doc)
	if err == nil {
		return r.decode(raw)
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.wrap("merge", e.GetID(), err)
	}
	exists, err := r.Exists(ctx, e.GetID())
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s %q", ErrPreconditionFailed, r.kind, e.GetID())
	}
	return nil, fmt.Errorf("%w: %s %q", ErrNotFound, r.kind, e.GetID())
}

// Remove deletes the document with e's id. Removing an absent id is not an
// error; the returned bool is false when it was already gone.
func (r *Repository[T, P]) Remove(ctx context.Context, e P) (bool, error) {
	return r.RemoveByID(ctx, e.GetID())
}

// RemoveByID is Remove for callers holding only the id.
func (r *Repository[T, P]) RemoveByID(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, byID(id))
	if err != nil {
		return false, r.wrap("remove", id, err)
	}
	return res.DeletedCount > 0, nil
}

// FindAll pages through the collection in insertion order.
func (r *Repository[T, P]) FindAll(ctx context.Context, offset, limit int) ([]*T, error) {
	return r.FindBy(ctx, nil, offset, limit)
}

// FindBy returns the entities matching every predicate, in insertion order.
// No match yields an empty slice.
func (r *Repository[T, P]) FindBy(ctx context.Context, criteria Criteria, offset, limit int) ([]*T, error) {
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: offset=%d limit=%d", ErrInvalidPage, offset, limit)
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	filter, err := criteria.Filter()
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "$natural", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, r.wrap("find", "", err)
	}
	defer cursor.Close(ctx)

	out := make([]*T, 0, limit)
	for cursor.Next(ctx) {
		v, err := r.decode(cursor.Current)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := cursor.Err(); err != nil {
		return nil, r.wrap("find", "", err)
	}
	return out, nil
}

// Count returns the number of documents matching criteria.
func (r *Repository[T, P]) Count(ctx context.Context, criteria Criteria) (int64, error) {
	filter, err := criteria.Filter()
	if err != nil {
		return 0, err
	}
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, r.wrap("count", "", err)
	}
	return n, nil
}

func (r *Repository[T, P]) replace(ctx context.Context, filter bson.D, doc bson.Raw) (bson.Raw, error) {
	opts := options.FindOneAndReplace().
		SetReturnDocument(options.Before).
		SetUpsert(false)
	return r.coll.FindOneAndReplace(ctx, filter, doc, opts).Raw()
}

func (r *Repository[T, P]) encode(e P) (bson.Raw, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil %s", ErrCodec, r.kind)
	}
	if e.GetID() == "" {
		return nil, fmt.Errorf("%w: %s without id", ErrCodec, r.kind)
	}
	return r.codec.Encode(e)
}

func (r *Repository[T, P]) decode(raw bson.Raw) (*T, error) {
	var v T
	if err := r.codec.Decode(raw, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", r.kind, err)
	}
	return &v, nil
}

// wrap maps driver errors onto the package's taxonomy, keeping the cause.
func (r *Repository[T, P]) wrap(op, id string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%w: %s %q", ErrNotFound, r.kind, id)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %s %q", ErrDuplicateID, r.kind, id)
	case errors.Is(err, ErrCodec):
		return err
	}
	return fmt.Errorf("%w: %s %s %q: %w", ErrStoreUnavailable, op, r.kind, id, err)
}

func byID(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}
