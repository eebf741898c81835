package marketplace

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"github.com/jesadaho/asset-ace-sub000/internal/objectstore"
	"github.com/jesadaho/asset-ace-sub000/internal/search"
	"github.com/jesadaho/asset-ace-sub000/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var base = time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

func seed(t *testing.T, db *gorm.DB, id string, createdAt time.Time, mutate func(*models.Property)) *models.Property {
	t.Helper()
	p := &models.Property{
		ID:           id,
		OwnerID:      "U-owner",
		Name:         "Unit " + id,
		Type:         models.PropertyTypeCondo,
		Address:      "Silom, Bangkok",
		Price:        10000,
		Status:       models.PropertyStatusAvailable,
		OpenForAgent: true,
		CreatedAt:    createdAt,
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func collect(t *testing.T, svc *Service, q Query) []string {
	t.Helper()
	var ids []string
	seen := map[string]bool{}
	for pages := 0; pages < 100; pages++ {
		page, err := svc.Search(context.Background(), q)
		require.NoError(t, err)
		for _, item := range page.Items {
			require.False(t, seen[item.ID], "duplicate %s", item.ID)
			seen[item.ID] = true
			ids = append(ids, item.ID)
		}
		if !page.HasMore {
			assert.Empty(t, page.NextCursor)
			return ids
		}
		require.NotEmpty(t, page.NextCursor)
		q.Cursor = page.NextCursor
	}
	t.Fatal("pagination did not terminate")
	return nil
}

func TestSearch_KeysetPaginationWithTimestampTies(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)

	type row struct {
		id string
		at time.Time
	}
	var rows []row
	// groups of identical timestamps straddle page boundaries
	for i := 0; i < 11; i++ {
		at := base.Add(time.Duration(i/4) * time.Minute)
		id := fmt.Sprintf("p-%02d", i)
		seed(t, db, id, at, nil)
		rows = append(rows, row{id, at})
	}
	// not listed
	seed(t, db, "draft", base.Add(time.Hour), func(p *models.Property) { p.Status = models.PropertyStatusDraft })
	seed(t, db, "closed", base.Add(time.Hour), func(p *models.Property) { p.OpenForAgent = false })
	seed(t, db, "occupied", base.Add(time.Hour), func(p *models.Property) { p.Status = models.PropertyStatusOccupied })

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].at.Equal(rows[j].at) {
			return rows[i].at.After(rows[j].at)
		}
		return rows[i].id > rows[j].id
	})
	want := make([]string, len(rows))
	for i, r := range rows {
		want[i] = r.id
	}

	for _, size := range []int{1, 3, 4, 5, 50} {
		t.Run(fmt.Sprintf("page size %d", size), func(t *testing.T) {
			assert.Equal(t, want, collect(t, svc, Query{PageSize: size}))
		})
	}
}

func TestSearch_TotalCountOnFirstPageOnly(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	for i := 0; i < 5; i++ {
		seed(t, db, fmt.Sprintf("p%d", i), base.Add(time.Duration(i)*time.Second), nil)
	}

	first, err := svc.Search(context.Background(), Query{PageSize: 2})
	require.NoError(t, err)
	require.NotNil(t, first.TotalCount)
	assert.EqualValues(t, 5, *first.TotalCount)
	assert.True(t, first.HasMore)
	assert.Equal(t, []string{"p4", "p3"}, []string{first.Items[0].ID, first.Items[1].ID})

	second, err := svc.Search(context.Background(), Query{PageSize: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Nil(t, second.TotalCount)
	assert.Equal(t, "p2", second.Items[0].ID)
}

func TestSearch_Filters(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	seed(t, db, "cheap", base, func(p *models.Property) { p.Price = 5000; p.Address = "Ari, BANGKOK" })
	seed(t, db, "mid", base.Add(time.Second), func(p *models.Property) { p.Price = 15000; p.Address = "Nimman, Chiang Mai" })
	seed(t, db, "dear", base.Add(2*time.Second), func(p *models.Property) { p.Price = 40000; p.Address = "Thonglor, Bangkok" })

	ids := func(q Query) []string {
		page, err := svc.Search(context.Background(), q)
		require.NoError(t, err)
		out := []string{}
		for _, item := range page.Items {
			out = append(out, item.ID)
		}
		return out
	}

	lo, hi := 10000.0, 40000.0
	assert.Equal(t, []string{"dear", "cheap"}, ids(Query{Location: "bangkok"}))
	assert.Equal(t, []string{"dear", "mid"}, ids(Query{MinPrice: &lo}))
	assert.Equal(t, []string{"dear", "mid"}, ids(Query{MinPrice: &lo, MaxPrice: &hi}))
	assert.Equal(t, []string{"dear"}, ids(Query{Location: "thong", MinPrice: &lo}))
	assert.Empty(t, ids(Query{Location: "phuket"}))
}

func TestSearch_Validation(t *testing.T) {
	svc := NewService(testutil.NewDB(t))
	lo, hi, neg := 500.0, 100.0, -1.0

	for name, q := range map[string]Query{
		"inverted range": {MinPrice: &lo, MaxPrice: &hi},
		"negative":       {MinPrice: &neg},
		"bad cursor":     {Cursor: "!!!"},
		"cursor no id":   {Cursor: Cursor{CreatedAt: base}.Encode()},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Search(context.Background(), q)
			assert.ErrorIs(t, err, apperr.ErrValidationFailed)
		})
	}
}

func TestQuery_PageSizeClamp(t *testing.T) {
	for _, tc := range []struct{ in, want int }{{0, 10}, {-3, 10}, {1, 1}, {50, 50}, {51, 50}, {500, 50}} {
		q := Query{PageSize: tc.in}
		require.NoError(t, q.normalize())
		assert.Equal(t, tc.want, q.PageSize, "in=%d", tc.in)
	}
}

func TestCursor_RoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: base.Add(123 * time.Millisecond), ID: "a:b"}
	got, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(c.CreatedAt))
	assert.Equal(t, "a:b", got.ID)
}

type mapCache struct {
	data  map[string]int64
	reads int
}

func (m *mapCache) GetCount(_ context.Context, key string) (int64, bool, error) {
	m.reads++
	n, ok := m.data[key]
	return n, ok, nil
}

func (m *mapCache) SetCount(_ context.Context, key string, n int64) error {
	m.data[key] = n
	return nil
}

func TestSearch_UsesCountCache(t *testing.T) {
	db := testutil.NewDB(t)
	cache := &mapCache{data: map[string]int64{}}
	svc := NewService(db, WithCountCache(cache))
	seed(t, db, "a", base, nil)

	page, err := svc.Search(context.Background(), Query{Location: "Silom"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, *page.TotalCount)
	require.Len(t, cache.data, 1)

	// a stale cached value is served until it expires
	for k := range cache.data {
		cache.data[k] = 42
	}
	page, err = svc.Search(context.Background(), Query{Location: " silom "})
	require.NoError(t, err)
	assert.EqualValues(t, 42, *page.TotalCount)
	assert.Equal(t, 2, cache.reads)
}

func TestGenerateQueryCacheKey_IsOrderIndependent(t *testing.T) {
	a := GenerateQueryCacheKey("p", map[string]string{"x": "1", "y": "2"})
	b := GenerateQueryCacheKey("p", map[string]string{"y": "2", "x": "1"})
	c := GenerateQueryCacheKey("p", map[string]string{"x": "2", "y": "1"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "p:"))
}

type stubStore struct{}

func (stubStore) PresignUpload(context.Context, string, string) (*objectstore.Upload, error) {
	return nil, nil
}

func (stubStore) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://cdn.example/" + key, nil
}

func TestSearch_ResolvesPhotoURLs(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, WithPhotoStore(stubStore{}))
	seed(t, db, "a", base, func(p *models.Property) { p.PhotoKeys = models.StringList{"photos/1.jpg", "photos/2.jpg"} })

	page, err := svc.Search(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, []string{"https://cdn.example/photos/1.jpg", "https://cdn.example/photos/2.jpg"}, page.Items[0].PhotoURLs)
}

type stubIndex struct {
	search.Noop
	ids []string
}

func (s stubIndex) Search(context.Context, search.FilterParams) ([]string, error) {
	return s.ids, nil
}

func TestFullText_KeepsRelevanceOrderAndDropsClosedListings(t *testing.T) {
	db := testutil.NewDB(t)
	seed(t, db, "a", base, nil)
	seed(t, db, "b", base.Add(time.Second), nil)
	seed(t, db, "gone", base, func(p *models.Property) { p.Status = models.PropertyStatusOccupied })

	svc := NewService(db, WithIndex(stubIndex{ids: []string{"b", "gone", "missing", "a"}}))
	items, err := svc.FullText(context.Background(), FullTextQuery{Text: "pool view", Limit: 5})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ID)
	assert.Equal(t, "a", items[1].ID)

	_, err = svc.FullText(context.Background(), FullTextQuery{Text: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	_, err = svc.FullText(context.Background(), FullTextQuery{Text: "pool", Types: []models.PropertyType{"Castle"}})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
}
