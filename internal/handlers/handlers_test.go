package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jesadaho/asset-ace-sub000/internal/clone"
	"github.com/jesadaho/asset-ace-sub000/internal/config"
	"github.com/jesadaho/asset-ace-sub000/internal/engagement"
	"github.com/jesadaho/asset-ace-sub000/internal/identity"
	"github.com/jesadaho/asset-ace-sub000/internal/importer"
	"github.com/jesadaho/asset-ace-sub000/internal/ledger"
	"github.com/jesadaho/asset-ace-sub000/internal/marketplace"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"github.com/jesadaho/asset-ace-sub000/internal/objectstore"
	"github.com/jesadaho/asset-ace-sub000/internal/profile"
	"github.com/jesadaho/asset-ace-sub000/internal/property"
	"github.com/jesadaho/asset-ace-sub000/internal/ratelimit"
	"github.com/jesadaho/asset-ace-sub000/internal/scheduler"
	"github.com/jesadaho/asset-ace-sub000/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const adminToken = "admin-secret"

type stubFetcher struct {
	listing *importer.Listing
	err     error
}

func (f stubFetcher) Fetch(context.Context, string) (*importer.Listing, error) {
	return f.listing, f.err
}

type testServer struct {
	router   *gin.Engine
	db       *gorm.DB
	notifier *testutil.RecordingNotifier
}

// bearer credentials are the user ids themselves, except "bad"
func newTestServer(t *testing.T, limiter *ratelimit.RateLimiter, fetcher ListingFetcher) *testServer {
	t.Helper()
	return newTestServerWithStore(t, limiter, fetcher, nil)
}

func newTestServerWithStore(t *testing.T, limiter *ratelimit.RateLimiter, fetcher ListingFetcher, store objectstore.Gateway) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	notifier := &testutil.RecordingNotifier{}
	verifier := identity.VerifierFunc(func(_ context.Context, credential string) (string, error) {
		if credential == "bad" {
			return "", identity.ErrInvalidCredential
		}
		return credential, nil
	})

	properties := property.NewService(db, notifier)
	engagements := engagement.NewService(db, notifier, engagement.WithInvites("https://app.example", 0))
	sched := scheduler.NewScheduler(config.SchedulerConfig{}, engagements, nil, nil)

	router := NewRouter(RouterConfig{
		Verifier:    verifier,
		Limiter:     limiter,
		AdminToken:  adminToken,
		Properties:  NewPropertyHandler(properties, ledger.NewService(db), clone.NewService(db), fetcher, store),
		Engagement:  NewEngagementHandler(engagements),
		Marketplace: NewMarketplaceHandler(marketplace.NewService(db)),
		Profiles:    NewProfileHandler(profile.NewService(db)),
		Uploads:     NewUploadHandler(nil),
		Admin:       NewAdminHandler(db, sched, properties, nil, limiter),
	})
	return &testServer{router: router, db: db, notifier: notifier}
}

func (s *testServer) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	decode(t, w, &body)
	assert.NotEmpty(t, body.Error)
	return body.Code
}

func (s *testServer) createProperty(t *testing.T, owner string, body map[string]interface{}) models.Property {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/properties", owner, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p models.Property
	decode(t, w, &p)
	return p
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(t, http.MethodGet, "/api/properties", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))

	w = s.do(t, http.MethodGet, "/api/properties", "bad", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPropertyLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(t, http.MethodPost, "/api/properties", "owner-1", map[string]interface{}{"name": "Bad", "type": "Castle"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, w))

	p := s.createProperty(t, "owner-1", map[string]interface{}{
		"name": "Sukhumvit 24", "type": "Condo", "price": 25000, "publish": true,
	})
	assert.Equal(t, models.PropertyStatusAvailable, p.Status)

	w = s.do(t, http.MethodGet, "/api/properties/"+p.ID, "stranger", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))

	rent := map[string]interface{}{
		"tenant_name":           "Somchai",
		"contract_start_date":   "2024-01-01",
		"lease_duration_months": 12,
	}
	w = s.do(t, http.MethodPost, "/api/properties/"+p.ID+"/rent", "owner-1", rent)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rented models.Property
	decode(t, w, &rented)
	assert.Equal(t, models.PropertyStatusOccupied, rented.Status)
	assert.Equal(t, "Somchai", rented.TenantName)

	w = s.do(t, http.MethodPost, "/api/properties/"+p.ID+"/rent", "owner-1", rent)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", errorCode(t, w))

	w = s.do(t, http.MethodPost, "/api/properties/"+p.ID+"/checkout", "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var vacated models.Property
	decode(t, w, &vacated)
	assert.Equal(t, models.PropertyStatusAvailable, vacated.Status)
	assert.Empty(t, vacated.TenantName)

	w = s.do(t, http.MethodGet, "/api/properties/"+p.ID+"/rental-history", "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Records []models.RentalHistoryRecord `json:"records"`
	}
	decode(t, w, &history)
	require.Len(t, history.Records, 1)
	assert.NotNil(t, history.Records[0].EndDate)

	w = s.do(t, http.MethodPost, "/api/properties/"+p.ID+"/clone", "owner-1", map[string]interface{}{"count": 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var cloned struct {
		Count int `json:"count"`
	}
	decode(t, w, &cloned)
	assert.Equal(t, 3, cloned.Count)

	w = s.do(t, http.MethodDelete, "/api/properties/"+p.ID, "owner-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

type cdnStore struct{}

func (cdnStore) PresignUpload(context.Context, string, string) (*objectstore.Upload, error) {
	return nil, nil
}

func (cdnStore) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://files.example/" + key, nil
}

func TestContractURLsResolvedForOwner(t *testing.T) {
	s := newTestServerWithStore(t, nil, nil, cdnStore{})

	p := s.createProperty(t, "owner-1", map[string]interface{}{
		"name": "Ari Loft", "type": "Condo", "price": 18000, "publish": true,
		"photo_keys": []string{"photos/front.jpg"},
	})

	w := s.do(t, http.MethodPost, "/api/properties/"+p.ID+"/rent", "owner-1", map[string]interface{}{
		"tenant_name":           "Somchai",
		"contract_start_date":   "2024-01-01",
		"lease_duration_months": 12,
		"contract_key":          "contracts/lease.pdf",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/properties/"+p.ID, "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got struct {
		PhotoURLs   []string `json:"photo_urls"`
		ContractURL string   `json:"contract_url"`
	}
	decode(t, w, &got)
	assert.Equal(t, []string{"https://files.example/photos/front.jpg"}, got.PhotoURLs)
	assert.Equal(t, "https://files.example/contracts/lease.pdf", got.ContractURL)

	w = s.do(t, http.MethodGet, "/api/properties/"+p.ID+"/rental-history", "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var history struct {
		Records []struct {
			ContractKey string `json:"contract_key"`
			ContractURL string `json:"contract_url"`
		} `json:"records"`
	}
	decode(t, w, &history)
	require.Len(t, history.Records, 1)
	assert.Equal(t, "contracts/lease.pdf", history.Records[0].ContractKey)
	assert.Equal(t, "https://files.example/contracts/lease.pdf", history.Records[0].ContractURL)
}

func TestContactRequestOverHTTP(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(t, http.MethodPut, "/api/me/profile", "owner-1", map[string]interface{}{
		"display_name": "Khun Nid", "phone": "0812345678",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	p := s.createProperty(t, "owner-1", map[string]interface{}{
		"name": "Ari Condo", "type": "Condo", "price": 18000, "publish": true, "open_for_agent": true,
	})

	w = s.do(t, http.MethodPost, "/api/properties/"+p.ID+"/contact-request", "agent-1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "PROFILE_NAME_REQUIRED", errorCode(t, w))

	w = s.do(t, http.MethodPut, "/api/me/profile", "agent-1", map[string]interface{}{
		"role": "agent", "display_name": "Agent Ann", "phone": "0899999999",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/properties/"+p.ID+"/contact-request", "agent-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var contact engagement.OwnerContact
	decode(t, w, &contact)
	assert.Equal(t, "Khun Nid", contact.Name)
	assert.Equal(t, "0812345678", contact.Phone)
	assert.Len(t, s.notifier.To("owner-1"), 1)

	w = s.do(t, http.MethodGet, "/api/properties/"+p.ID+"/contact-requests", "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Count)
}

func TestRateLimitedRoutes(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(2, 100, true)
	s := newTestServer(t, limiter, nil)
	p := s.createProperty(t, "owner-1", map[string]interface{}{"name": "Draft", "type": "House"})

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/properties/"+p.ID+"/contact-request", "agent-1", nil)
		assert.NotEqual(t, http.StatusTooManyRequests, w.Code)
	}
	w := s.do(t, http.MethodPost, "/api/properties/"+p.ID+"/contact-request", "agent-1", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, w))

	// limits are per user
	w = s.do(t, http.MethodPost, "/api/properties/"+p.ID+"/contact-request", "agent-2", nil)
	assert.NotEqual(t, http.StatusTooManyRequests, w.Code)
}

func TestInviteOverHTTP(t *testing.T) {
	s := newTestServer(t, nil, nil)
	p := s.createProperty(t, "owner-1", map[string]interface{}{"name": "Villa", "type": "House"})

	w := s.do(t, http.MethodPost, "/api/properties/"+p.ID+"/invite", "owner-1", map[string]interface{}{"invitee_name": "Ann"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var inv engagement.Invite
	decode(t, w, &inv)
	assert.Contains(t, inv.URL, "https://app.example/invite/"+p.ID)

	w = s.do(t, http.MethodPut, "/api/me/profile", "agent-1", map[string]interface{}{"display_name": "Agent Ann"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/properties/"+p.ID+"/accept-invite", "agent-1", map[string]interface{}{"token": inv.Token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var accepted models.Property
	decode(t, w, &accepted)
	assert.Equal(t, "agent-1", accepted.AgentLineID)

	w = s.do(t, http.MethodPost, "/api/properties/"+p.ID+"/accept-invite", "agent-1", map[string]interface{}{"token": inv.Token})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/agent/properties", "agent-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var managed struct {
		Count int `json:"count"`
	}
	decode(t, w, &managed)
	assert.Equal(t, 1, managed.Count)
}

func TestMarketplaceOverHTTP(t *testing.T) {
	s := newTestServer(t, nil, nil)
	for _, name := range []string{"One", "Two"} {
		s.createProperty(t, "owner-1", map[string]interface{}{
			"name": name, "type": "Apartment", "price": 10000, "address": "Bangkok", "publish": true, "open_for_agent": true,
		})
	}
	s.createProperty(t, "owner-1", map[string]interface{}{"name": "Hidden", "type": "Apartment", "publish": true})

	w := s.do(t, http.MethodGet, "/api/marketplace?page_size=1&location=bang", "agent-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page marketplace.Page
	decode(t, w, &page)
	require.Len(t, page.Items, 1)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.NextCursor)
	require.NotNil(t, page.TotalCount)
	assert.EqualValues(t, 2, *page.TotalCount)

	w = s.do(t, http.MethodGet, "/api/marketplace?cursor="+page.NextCursor+"&page_size=1", "agent-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var next marketplace.Page
	decode(t, w, &next)
	require.Len(t, next.Items, 1)
	assert.False(t, next.HasMore)
	assert.Nil(t, next.TotalCount)
	assert.NotEqual(t, page.Items[0].ID, next.Items[0].ID)

	w = s.do(t, http.MethodGet, "/api/marketplace?min_price=abc", "agent-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/marketplace?cursor=bm9jb2xvbg", "agent-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportOverHTTP(t *testing.T) {
	fetcher := stubFetcher{listing: &importer.Listing{
		SourceURL: "https://listings.example/1",
		Title:     "Riverside Condo",
		Type:      models.PropertyTypeCondo,
		Price:     32000,
	}}
	s := newTestServer(t, nil, fetcher)

	w := s.do(t, http.MethodPost, "/api/properties/import", "owner-1", map[string]interface{}{"url": "https://listings.example/1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		Property models.Property  `json:"property"`
		Source   importer.Listing `json:"source"`
	}
	decode(t, w, &out)
	assert.Equal(t, "Riverside Condo", out.Property.Name)
	assert.Equal(t, models.PropertyStatusDraft, out.Property.Status)
	assert.Equal(t, 32000.0, out.Property.Price)

	bad := newTestServer(t, nil, stubFetcher{err: importer.ErrInvalidURL})
	w = bad.do(t, http.MethodPost, "/api/properties/import", "owner-1", map[string]interface{}{"url": "ftp://x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadsWithoutStorage(t *testing.T) {
	s := newTestServer(t, nil, nil)
	w := s.do(t, http.MethodPost, "/api/uploads/presign", "owner-1", map[string]interface{}{
		"filename": "a.jpg", "content_type": "image/jpeg",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "UNAVAILABLE", errorCode(t, w))
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.createProperty(t, "owner-1", map[string]interface{}{"name": "A", "type": "House"})

	w := s.do(t, http.MethodGet, "/api/admin/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats struct {
		Properties struct {
			ByStatus map[string]int64 `json:"by_status"`
			Total    int64            `json:"total"`
		} `json:"properties"`
		OpenRentalRecords int64 `json:"open_rental_records"`
	}
	decode(t, rec, &stats)
	assert.EqualValues(t, 1, stats.Properties.Total)
	assert.EqualValues(t, 1, stats.Properties.ByStatus["Draft"])
	assert.EqualValues(t, 0, stats.OpenRentalRecords)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/vacancy-scan", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var scan engagement.ScanResult
	decode(t, rec, &scan)
	assert.Equal(t, 0, scan.Notified)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/cleanup/invites", bytes.NewReader([]byte(`{"dry_run":true}`)))
	req.Header.Set("X-Admin-Token", adminToken)
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
