package entitymanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"jaqpot/backend/go/internal/models"
)

const taskNS = "test.Task"

func newTaskRepository(mt *mtest.T) *Repository[models.Task, *models.Task] {
	m := New(mt.DB, DefaultRegistry(), nil)
	return MustRepository[models.Task](m)
}

func toDoc(t require.TestingT, e models.Entity) bson.D {
	raw, err := NewBSONCodec().Encode(e)
	require.NoError(t, err)
	var d bson.D
	require.NoError(t, bson.Unmarshal(raw, &d))
	return d
}

func countResponse(n int32) bson.D {
	return mtest.CreateCursorResponse(0, taskNS, mtest.FirstBatch, bson.D{{Key: "n", Value: n}})
}

func TestRepositoryPersist(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("inserts", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, repo.Persist(ctx, sampleTask("t1t1t1t1t1t1")))
	})

	mt.Run("duplicate id", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))

		err := repo.Persist(ctx, sampleTask("t1t1t1t1t1t1"))
		require.ErrorIs(mt, err, ErrDuplicateID)
	})

	mt.Run("missing id", func(mt *mtest.T) {
		repo := newTaskRepository(mt)

		err := repo.Persist(ctx, &models.Task{Status: models.TaskStatusQueued})
		require.ErrorIs(mt, err, ErrCodec)
	})

	mt.Run("store failure", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "boom",
		}))

		err := repo.Persist(ctx, sampleTask("t1t1t1t1t1t1"))
		require.ErrorIs(mt, err, ErrStoreUnavailable)
	})
}

func TestRepositoryFind(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("found", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		want := sampleTask("t1t1t1t1t1t1")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, taskNS, mtest.FirstBatch, toDoc(mt, want)))

		got, err := repo.Find(ctx, want.ID)
		require.NoError(mt, err)
		require.Equal(mt, want, got)
	})

	mt.Run("not found", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, taskNS, mtest.FirstBatch))

		got, err := repo.Find(ctx, "missing12345")
		require.ErrorIs(mt, err, ErrNotFound)
		require.Nil(mt, got)
	})

	mt.Run("incompatible document", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, taskNS, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "t1t1t1t1t1t1"},
			{Key: "duration", Value: "long"},
		}))

		_, err := repo.Find(ctx, "t1t1t1t1t1t1")
		require.ErrorIs(mt, err, ErrCodec)
	})
}

func TestRepositoryMergeReturnsPreviousState(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("replaces", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		old := sampleTask("t1t1t1t1t1t1")
		updated := sampleTask("t1t1t1t1t1t1")
		updated.Meta = models.MetaInfoBuilderFrom(updated.Meta).
			SetDescriptions("this is a very cool task", "oh, and it's super useful too").
			Build()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: toDoc(mt, old)}))

		prev, err := repo.Merge(ctx, updated)
		require.NoError(mt, err)
		require.Equal(mt, old, prev)
		require.NotEqual(mt, updated.Meta.Descriptions, prev.Meta.Descriptions)
	})

	mt.Run("never upserts", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		_, err := repo.Merge(ctx, sampleTask("missing12345"))
		require.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestRepositoryMergeIf(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	guard := Criteria{NotIn("status", models.TerminalTaskStatuses...)}

	mt.Run("guard matched", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		old := sampleTask("t1t1t1t1t1t1")
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: toDoc(mt, old)}))

		prev, err := repo.MergeIf(ctx, sampleTask("t1t1t1t1t1t1"), guard)
		require.NoError(mt, err)
		require.Equal(mt, old, prev)
	})

	mt.Run("guard rejected", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(), countResponse(1))

		_, err := repo.MergeIf(ctx, sampleTask("t1t1t1t1t1t1"), guard)
		require.ErrorIs(mt, err, ErrPreconditionFailed)
	})

	mt.Run("absent", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateCursorResponse(0, taskNS, mtest.FirstBatch))

		_, err := repo.MergeIf(ctx, sampleTask("t1t1t1t1t1t1"), guard)
		require.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("invalid guard", func(mt *mtest.T) {
		repo := newTaskRepository(mt)

		_, err := repo.MergeIf(ctx, sampleTask("t1t1t1t1t1t1"), Criteria{Eq("$bad", 1)})
		require.ErrorIs(mt, err, ErrInvalidCriteria)
	})
}

func TestRepositoryRemoveIsIdempotent(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("remove twice", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		task := sampleTask("t1t1t1t1t1t1")
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(1)}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(0)}),
		)

		deleted, err := repo.Remove(context.Background(), task)
		require.NoError(mt, err)
		require.True(mt, deleted)

		deleted, err = repo.Remove(context.Background(), task)
		require.NoError(mt, err)
		require.False(mt, deleted)
	})
}

func TestRepositoryFindAll(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("returns stored entities in order", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		first := sampleTask("115a0da892cc")
		second := sampleTask("215a0da892cc")
		second.Status = models.TaskStatusCompleted
		mt.AddMockResponses(mtest.CreateCursorResponse(0, taskNS, mtest.FirstBatch, toDoc(mt, first), toDoc(mt, second)))

		got, err := repo.FindAll(ctx, 0, 5)
		require.NoError(mt, err)
		require.Equal(mt, []*models.Task{first, second}, got)
	})

	mt.Run("empty", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, taskNS, mtest.FirstBatch))

		got, err := repo.FindAll(ctx, 0, 5)
		require.NoError(mt, err)
		require.NotNil(mt, got)
		require.Empty(mt, got)
	})

	mt.Run("invalid page", func(mt *mtest.T) {
		repo := newTaskRepository(mt)

		_, err := repo.FindAll(ctx, -1, 5)
		require.ErrorIs(mt, err, ErrInvalidPage)
		_, err = repo.FindAll(ctx, 0, 0)
		require.ErrorIs(mt, err, ErrInvalidPage)
	})
}

func TestRepositoryFindByAndCount(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("find by", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		want := sampleTask("t1t1t1t1t1t1")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, taskNS, mtest.FirstBatch, toDoc(mt, want)))

		got, err := repo.FindBy(ctx, Where(map[string]any{
			"duration":      int64(1534),
			"meta.comments": []string{"dataset downloaded", "task started", "this task does training"},
		}), 0, 5)
		require.NoError(mt, err)
		require.Equal(mt, []*models.Task{want}, got)
	})

	mt.Run("invalid criteria never reaches the store", func(mt *mtest.T) {
		repo := newTaskRepository(mt)

		_, err := repo.FindBy(ctx, Criteria{Eq("meta..comments", "a")}, 0, 5)
		require.ErrorIs(mt, err, ErrInvalidCriteria)
	})

	mt.Run("count", func(mt *mtest.T) {
		repo := newTaskRepository(mt)
		mt.AddMockResponses(countResponse(2))

		n, err := repo.Count(ctx, Criteria{Eq("createdBy", "random-user@jaqpot.org")})
		require.NoError(mt, err)
		require.Equal(mt, int64(2), n)
	})
}
