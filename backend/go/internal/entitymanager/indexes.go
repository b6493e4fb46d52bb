package entitymanager

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"jaqpot/backend/go/internal/models"
)

// secondaryIndexes lists the lookups the services issue per kind besides _id.
var secondaryIndexes = map[models.Kind][]mongo.IndexModel{
	models.KindTask: {
		{Keys: bson.D{{Key: "createdBy", Value: 1}, {Key: "status", Value: 1}}, Options: options.Index().SetName("createdBy_status")},
	},
	models.KindNotification: {
		{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "viewed", Value: 1}}, Options: options.Index().SetName("owner_viewed")},
	},
	models.KindDoa: {
		{Keys: bson.D{{Key: "modelId", Value: 1}}, Options: options.Index().SetName("modelId")},
	},
}

// EnsureIndexes creates the secondary indexes of every registered kind. It is
// idempotent and meant to run once at startup.
func (m *Manager) EnsureIndexes(ctx context.Context) error {
	for _, kind := range m.registry.Kinds() {
		idx, ok := secondaryIndexes[kind]
		if !ok {
			continue
		}
		name, err := m.registry.CollectionName(kind)
		if err != nil {
			return err
		}
		if _, err := m.db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("%w: create indexes on %s: %w", ErrStoreUnavailable, name, err)
		}
	}
	return nil
}
