package store

import (
	"testing"

	"jaqpot/backend/go/internal/models"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestTaskCriteria(t *testing.T) {
	filter, err := taskCriteria("alice", "").Filter()
	require.NoError(t, err)
	require.Equal(t, bson.D{
		{Key: "createdBy", Value: bson.D{{Key: "$eq", Value: "alice"}}},
		{Key: "visible", Value: bson.D{{Key: "$eq", Value: true}}},
	}, filter)

	filter, err = taskCriteria("alice", models.TaskStatusRunning).Filter()
	require.NoError(t, err)
	require.Len(t, filter, 3)
	require.Equal(t, "status", filter[2].Key)
}

func TestNotificationCriteria(t *testing.T) {
	all, err := notificationCriteria("alice", models.NotificationQueryAll).Filter()
	require.NoError(t, err)
	require.Equal(t, bson.D{{Key: "owner", Value: bson.D{{Key: "$eq", Value: "alice"}}}}, all)

	unread, err := notificationCriteria("alice", models.NotificationQueryUnread).Filter()
	require.NoError(t, err)
	require.Equal(t, bson.D{
		{Key: "owner", Value: bson.D{{Key: "$eq", Value: "alice"}}},
		{Key: "viewed", Value: bson.D{{Key: "$eq", Value: false}}},
	}, unread)
}
