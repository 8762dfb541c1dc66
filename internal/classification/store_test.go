package classification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClassificationRepository struct {
	mock.Mock
}

func (m *mockClassificationRepository) ListAll(ctx context.Context) ([]*Classification, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]*Classification)
	return list, args.Error(1)
}

func (m *mockClassificationRepository) CurrentSchemaVersion(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func intPtr(v int) *int { return &v }

func TestTierWeight(t *testing.T) {
	assert.Equal(t, 3, TierWeight(intPtr(1)))
	assert.Equal(t, 2, TierWeight(intPtr(2)))
	assert.Equal(t, 1, TierWeight(intPtr(3)))
	assert.Equal(t, DefaultTierWeight, TierWeight(nil))
	assert.Equal(t, DefaultTierWeight, TierWeight(intPtr(9)))
}

func TestStoreLookupDefaults(t *testing.T) {
	ctx := context.Background()
	repo := new(mockClassificationRepository)
	store := NewStore(repo, nil)

	repo.On("ListAll", ctx).Return([]*Classification{
		{ParkID: 1, RideID: 10, Tier: intPtr(1), Category: CategoryAttraction, SchemaVersion: 2},
		{ParkID: 1, RideID: 11, Tier: nil, Category: CategoryShow, SchemaVersion: 2},
	}, nil).Once()

	require.NoError(t, store.Rebuild(ctx))

	assert.Equal(t, 3, store.WeightFor(10))
	assert.Equal(t, CategoryAttraction, store.CategoryFor(10))

	// NULL tier falls back to the default weight.
	assert.Equal(t, DefaultTierWeight, store.WeightFor(11))
	assert.Equal(t, CategoryShow, store.CategoryFor(11))

	// Unclassified rides get defaults, never an error.
	assert.Nil(t, store.Lookup(999))
	assert.Equal(t, DefaultTierWeight, store.WeightFor(999))
	assert.Equal(t, CategoryAttraction, store.CategoryFor(999))

	repo.AssertExpectations(t)
}

func TestStoreRefreshIfStale(t *testing.T) {
	ctx := context.Background()
	repo := new(mockClassificationRepository)
	store := NewStore(repo, nil)

	repo.On("ListAll", ctx).Return([]*Classification{
		{ParkID: 1, RideID: 10, Tier: intPtr(2), SchemaVersion: 1},
	}, nil).Once()
	require.NoError(t, store.Rebuild(ctx))

	// Same version: no rebuild.
	repo.On("CurrentSchemaVersion", ctx).Return(1, nil).Once()
	require.NoError(t, store.RefreshIfStale(ctx))

	// Version bump: wholesale invalidation and reload.
	repo.On("CurrentSchemaVersion", ctx).Return(2, nil).Once()
	repo.On("ListAll", ctx).Return([]*Classification{
		{ParkID: 1, RideID: 10, Tier: intPtr(1), SchemaVersion: 2},
	}, nil).Once()
	require.NoError(t, store.RefreshIfStale(ctx))

	assert.Equal(t, 3, store.WeightFor(10))
	repo.AssertExpectations(t)
}

func TestClassificationRoundTrip(t *testing.T) {
	c := &Classification{
		ParkID:          1,
		RideID:          10,
		Tier:            intPtr(1),
		Category:        CategoryAttraction,
		Reasoning:       "flagship coaster",
		ResearchSources: []string{"official-site"},
		SchemaVersion:   3,
	}

	assert.Equal(t, 3, c.Weight())
	assert.Equal(t, CategoryAttraction, c.EffectiveCategory())
}
