package suggest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/index"
	"github.com/gcbaptista/entity-search/internal/errors"
	"github.com/gcbaptista/entity-search/model"
)

type indexMap map[model.EntityType]*index.InvertedIndex

func (m indexMap) Index(t model.EntityType) (*index.InvertedIndex, bool) {
	ix, ok := m[t]
	return ix, ok
}

func setup(t *testing.T) (*Engine, indexMap) {
	t.Helper()
	cfg := config.Default()
	indexes := indexMap{}
	for _, typ := range cfg.EntityTypeNames() {
		indexes[typ] = index.New(typ, cfg.EntityTypes[typ])
	}

	companies := []struct {
		id, name   string
		popularity float64
	}{
		{"MSFT", "Microsoft Corporation", 95},
		{"MSTR", "MicroStrategy Incorporated", 40},
		{"MU", "Micron Technology", 40},
		{"AAPL", "Apple Inc.", 99},
		{"APLE", "Apple Hospitality REIT", 10},
	}
	for _, c := range companies {
		require.NoError(t, indexes[model.EntityTypeCompany].Upsert(model.Document{
			EntityID:        c.id,
			EntityType:      model.EntityTypeCompany,
			Fields:          []model.Field{{Name: "name", Text: c.name}, {Name: "symbol", Text: c.id}, {Name: "description", Text: "microchips maker"}},
			PopularityScore: c.popularity,
		}))
	}
	require.NoError(t, indexes[model.EntityTypeSector].Upsert(model.Document{
		EntityID:        "semis",
		EntityType:      model.EntityTypeSector,
		Fields:          []model.Field{{Name: "name", Text: "Microelectronics"}},
		PopularityScore: 60,
	}))

	return New(cfg, indexes, nil), indexes
}

func TestSuggest_PrefixRankedByPopularity(t *testing.T) {
	e, _ := setup(t)

	got, err := e.Suggest(context.Background(), "micro", model.EntityTypeCompany, 10)
	require.NoError(t, err)
	// description is not a suggestion field, so "microchips maker" never appears
	assert.Equal(t, []string{"Microsoft Corporation", "Micron Technology", "MicroStrategy Incorporated"}, got)
}

func TestSuggest_AllTypes(t *testing.T) {
	e, _ := setup(t)

	got, err := e.Suggest(context.Background(), "Micro", "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Microsoft Corporation", "Microelectronics"}, got)
}

func TestSuggest_MultiTokenPrefix(t *testing.T) {
	e, _ := setup(t)

	got, err := e.Suggest(context.Background(), "apple h", model.EntityTypeCompany, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple Hospitality REIT"}, got)

	got, err = e.Suggest(context.Background(), "apple", model.EntityTypeCompany, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple Inc.", "Apple Hospitality REIT"}, got)
}

func TestSuggest_SymbolField(t *testing.T) {
	e, _ := setup(t)

	got, err := e.Suggest(context.Background(), "aap", model.EntityTypeCompany, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, got)
}

func TestSuggest_Dedup(t *testing.T) {
	e, indexes := setup(t)
	require.NoError(t, indexes[model.EntityTypeCompany].Upsert(model.Document{
		EntityID:        "MSFT.L",
		EntityType:      model.EntityTypeCompany,
		Fields:          []model.Field{{Name: "name", Text: "MICROSOFT corporation"}},
		PopularityScore: 1,
	}))

	got, err := e.Suggest(context.Background(), "microsoft", model.EntityTypeCompany, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Microsoft Corporation"}, got, "the most popular surface form is kept")
}

func TestSuggest_EqualPopularityOrderedLexically(t *testing.T) {
	e, indexes := setup(t)
	require.NoError(t, indexes[model.EntityTypeCompany].Upsert(model.Document{
		EntityID:        "MDHG",
		EntityType:      model.EntityTypeCompany,
		Fields:          []model.Field{{Name: "name", Text: "Micro Devices Holdings Group"}},
		PopularityScore: 40,
	}))

	got, err := e.Suggest(context.Background(), "micro", model.EntityTypeCompany, 10)
	require.NoError(t, err)
	// text length plays no part: the longer completion sorts first on the normalized form
	assert.Equal(t, []string{
		"Microsoft Corporation",
		"Micro Devices Holdings Group",
		"Micron Technology",
		"MicroStrategy Incorporated",
	}, got)
}

func TestSuggest_EmptyAndInvalid(t *testing.T) {
	e, _ := setup(t)

	got, err := e.Suggest(context.Background(), "   ", model.EntityTypeCompany, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	_, err = e.Suggest(context.Background(), "micro", "planet", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestSuggest_LimitClamped(t *testing.T) {
	e, _ := setup(t)

	got, err := e.Suggest(context.Background(), "m", model.EntityTypeCompany, 1000)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), config.Default().Suggest.MaxLimit)

	got, err = e.Suggest(context.Background(), "micro", model.EntityTypeCompany, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Microsoft Corporation"}, got)
}

func TestSuggest_CacheInvalidatedByMutation(t *testing.T) {
	e, indexes := setup(t)
	ctx := context.Background()

	first, err := e.Suggest(ctx, "micro", model.EntityTypeCompany, 10)
	require.NoError(t, err)
	require.Len(t, first, 3)

	assert.True(t, indexes[model.EntityTypeCompany].Remove("MSFT"))

	second, err := e.Suggest(ctx, "micro", model.EntityTypeCompany, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Micron Technology", "MicroStrategy Incorporated"}, second)
}

func TestSuggest_CancelledContextReturnsPartial(t *testing.T) {
	e, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := e.Suggest(ctx, "micro", model.EntityTypeCompany, 10)
	require.NoError(t, err, "expiry is not an error")
	assert.LessOrEqual(t, len(got), 3)
}
