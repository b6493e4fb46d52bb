package entitymanager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"jaqpot/backend/go/internal/models"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	for _, kind := range []models.Kind{models.KindTask, models.KindNotification, models.KindErrorReport, models.KindDoa} {
		name, err := r.CollectionName(kind)
		require.NoError(t, err)
		require.Equal(t, string(kind), name)

		back, err := r.KindFor(name)
		require.NoError(t, err)
		require.Equal(t, kind, back)
	}
	require.Equal(t, []models.Kind{models.KindDoa, models.KindErrorReport, models.KindNotification, models.KindTask}, r.Kinds())
}

func TestRegistryUnregisteredKind(t *testing.T) {
	r := MustRegistry(map[models.Kind]string{models.KindTask: "tasks"})

	_, err := r.CollectionName(models.KindNotification)
	require.ErrorIs(t, err, ErrUnregisteredKind)

	_, err = r.KindFor("Notification")
	require.ErrorIs(t, err, ErrUnregisteredKind)
}

func TestNewRegistryRejectsInvalidTables(t *testing.T) {
	testCases := map[string]map[models.Kind]string{
		"empty kind":        {"": "x"},
		"empty name":        {models.KindTask: ""},
		"shared collection": {models.KindTask: "docs", models.KindDoa: "docs"},
	}

	for name, table := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(table)
			require.Error(t, err)
		})
	}
}

func TestRegistryIsDetachedFromInput(t *testing.T) {
	table := map[models.Kind]string{models.KindTask: "tasks"}
	r := MustRegistry(table)
	table[models.KindTask] = "other"

	name, err := r.CollectionName(models.KindTask)
	require.NoError(t, err)
	require.Equal(t, "tasks", name)
}

func TestNewRepositoryUnregisteredKind(t *testing.T) {
	m := New(nil, MustRegistry(map[models.Kind]string{models.KindTask: "Task"}), nil)

	_, err := NewRepository[models.Doa](m)
	require.ErrorIs(t, err, ErrUnregisteredKind)

	require.Panics(t, func() { MustRepository[models.Notification](m) })
}
