package supplier

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testdb "github.com/teranos/quotesearch/internal/testing"
	"github.com/teranos/quotesearch/internal/util"
	"github.com/teranos/quotesearch/search"
)

func seedStore(t *testing.T) (*Store, int64, int64) {
	t.Helper()
	store := NewStore(testdb.CreateMigratedTestDB(t), nil)
	ctx := context.Background()

	local, err := store.UpsertSupplier(ctx, Supplier{Name: "Loja A", URL: "https://loja-a.ao/", MarketScale: search.MarketLocal, Active: true})
	require.NoError(t, err)
	intl, err := store.UpsertSupplier(ctx, Supplier{Name: "Shop B", URL: "https://shop-b.com", MarketScale: search.MarketInternational, Active: false})
	require.NoError(t, err)
	return store, local, intl
}

func TestStore_Suppliers(t *testing.T) {
	store, local, intl := seedStore(t)
	ctx := context.Background()

	active, err := store.ActiveSuppliers(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, local, active[0].ID)
	assert.Equal(t, "https://loja-a.ao/*", active[0].Site().Pattern)

	all, err := store.AllSuppliers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sup, err := store.Supplier(ctx, intl)
	require.NoError(t, err)
	require.NotNil(t, sup)
	assert.False(t, sup.Active)
	assert.Equal(t, search.MarketInternational, sup.MarketScale)

	missing, err := store.Supplier(ctx, 999)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_UpsertByURL(t *testing.T) {
	store, local, _ := seedStore(t)
	id, err := store.UpsertSupplier(context.Background(), Supplier{Name: "Loja A renamed", URL: "https://loja-a.ao/", Active: true})
	require.NoError(t, err)
	assert.Equal(t, local, id)

	sup, err := store.Supplier(context.Background(), local)
	require.NoError(t, err)
	assert.Equal(t, "Loja A renamed", sup.Name)

	_, err = store.UpsertSupplier(context.Background(), Supplier{Name: "no url"})
	assert.Error(t, err)
}

func TestStore_SystemDefaults(t *testing.T) {
	store, _, _ := seedStore(t)
	ctx := context.Background()

	d := store.SystemDefaults(ctx)
	assert.Equal(t, 1, d.ResultsPerSite)
	assert.Nil(t, d.PriceMin)

	require.NoError(t, store.UpdateSystemDefaults(ctx, SystemDefaults{ResultsPerSite: 4, PriceMin: util.Ptr(10.0)}))
	d = store.SystemDefaults(ctx)
	assert.Equal(t, 4, d.ResultsPerSite)
	require.NotNil(t, d.PriceMin)
	assert.Equal(t, 10.0, *d.PriceMin)
	assert.Nil(t, d.PriceMax)
}

func TestStore_SystemDefaultsFallback(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT results_per_site").WillReturnError(sql.ErrConnDone)

	d := NewStore(conn, nil).SystemDefaults(context.Background())
	assert.Equal(t, DefaultResultsPerSite, d.ResultsPerSite)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveCandidatesSkipsDuplicates(t *testing.T) {
	store, local, _ := seedStore(t)
	ctx := context.Background()

	first, err := store.SaveCandidates(ctx, []search.Candidate{
		{Name: "Laptop X", Price: "100", ProductURL: "https://loja-a.ao/x", CorrelationID: "7"},
		{Name: "  laptop x ", Price: "99"},
		{Name: ""},
	}, local, 1)
	require.NoError(t, err)
	assert.Equal(t, SaveResult{Saved: 1, Skipped: 2}, first)

	second, err := store.SaveCandidates(ctx, []search.Candidate{
		{Name: "LAPTOP X"},
		{Name: "Laptop Y"},
	}, local, 1)
	require.NoError(t, err)
	assert.Equal(t, SaveResult{Saved: 1, Skipped: 1}, second)
}

func TestStore_SaveCandidatesUnknownSupplier(t *testing.T) {
	store, _, _ := seedStore(t)
	_, err := store.SaveCandidates(context.Background(), []search.Candidate{{Name: "X"}}, 999, 1)
	assert.Error(t, err, "foreign key violation")
}

func TestStore_SaveCandidatesRollsBackOnError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO products")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	result, err := NewStore(conn, nil).SaveCandidates(context.Background(), []search.Candidate{
		{Name: "A"}, {Name: "B"},
	}, 1, 1)
	require.Error(t, err)
	assert.Equal(t, SaveResult{}, result, "a failed batch reports nothing saved")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSeedAndImport(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "suppliers.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
[settings]
results_per_site = 2
price_max = 5000.0

[[suppliers]]
name = "Loja A"
url = "https://loja-a.ao/"
market_scale = "local"
active = true

[[suppliers]]
name = "Shop B"
url = "https://shop-b.com/"
market_scale = "international"
active = true
`), 0644))

	yamlPath := filepath.Join(dir, "suppliers.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
suppliers:
  - name: Loja C
    url: https://loja-c.ao/
    market_scale: local
    active: false
`), 0644))

	store := NewStore(testdb.CreateMigratedTestDB(t), nil)
	ctx := context.Background()

	seed, err := LoadSeed(tomlPath)
	require.NoError(t, err)
	n, err := store.Import(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	seed, err = LoadSeed(yamlPath)
	require.NoError(t, err)
	assert.Nil(t, seed.Settings)
	n, err = store.Import(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := store.ActiveSuppliers(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	d := store.SystemDefaults(ctx)
	assert.Equal(t, 2, d.ResultsPerSite)
	require.NotNil(t, d.PriceMax)
	assert.Equal(t, 5000.0, *d.PriceMax)

	_, err = LoadSeed(filepath.Join(dir, "suppliers.csv"))
	assert.Error(t, err)
}
