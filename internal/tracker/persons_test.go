package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

func testPersons() *PersonRegistry {
	return NewPersonRegistry(utils.NewLogger("error", "text"))
}

func TestPersonRegistryUpsert(t *testing.T) {
	r := testPersons()

	t.Run("default device auto-linked", func(t *testing.T) {
		require.NoError(t, r.Upsert(&models.Person{
			ID: "alice", Name: "Alice", DefaultDeviceID: "phone-1",
		}))

		p, ok := r.Get("alice")
		require.True(t, ok)
		assert.Equal(t, []string{"phone-1"}, p.LinkedDeviceIDs)
	})

	t.Run("invalid person rejected", func(t *testing.T) {
		assert.Error(t, r.Upsert(&models.Person{ID: "bob", Name: "Bob"}))
		_, ok := r.Get("bob")
		assert.False(t, ok)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		p, _ := r.Get("alice")
		p.LinkedDeviceIDs[0] = "mutated"
		p.Name = "Mutated"

		fresh, _ := r.Get("alice")
		assert.Equal(t, "Alice", fresh.Name)
		assert.Equal(t, []string{"phone-1"}, fresh.LinkedDeviceIDs)
	})
}

func TestPersonRegistryDeviceLinks(t *testing.T) {
	r := testPersons()
	require.NoError(t, r.Upsert(&models.Person{
		ID: "alice", Name: "Alice", DefaultDeviceID: "phone-1",
	}))

	t.Run("link is idempotent", func(t *testing.T) {
		require.NoError(t, r.LinkDevice("alice", "watch-1"))
		require.NoError(t, r.LinkDevice("alice", "watch-1"))

		p, _ := r.Get("alice")
		assert.Equal(t, []string{"phone-1", "watch-1"}, p.LinkedDeviceIDs)
	})

	t.Run("link to unknown person", func(t *testing.T) {
		assert.Error(t, r.LinkDevice("ghost", "watch-1"))
	})

	t.Run("unlink default device rejected", func(t *testing.T) {
		assert.Error(t, r.UnlinkDevice("alice", "phone-1"))
	})

	t.Run("active device must be linked", func(t *testing.T) {
		assert.Error(t, r.SetActiveDevice("alice", "unknown"))
		require.NoError(t, r.SetActiveDevice("alice", "watch-1"))

		p, _ := r.Get("alice")
		assert.Equal(t, "watch-1", p.DefaultDeviceID)
	})

	t.Run("unlink after default changed", func(t *testing.T) {
		require.NoError(t, r.UnlinkDevice("alice", "phone-1"))

		p, _ := r.Get("alice")
		assert.Equal(t, []string{"watch-1"}, p.LinkedDeviceIDs)
	})
}

func TestPersonRegistryListAndDelete(t *testing.T) {
	r := testPersons()
	require.NoError(t, r.Upsert(&models.Person{ID: "bob", Name: "Bob", DefaultDeviceID: "d2"}))
	require.NoError(t, r.Upsert(&models.Person{ID: "alice", Name: "Alice", DefaultDeviceID: "d1"}))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].ID)
	assert.Equal(t, "bob", list[1].ID)

	assert.True(t, r.Delete("bob"))
	assert.False(t, r.Delete("bob"))
	assert.Len(t, r.List(), 1)
}
