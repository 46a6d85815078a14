package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/common"
	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/models"
	"github.com/ternarybob/lotwatch/internal/parsers"
	"github.com/ternarybob/lotwatch/internal/services/fetch"
)

// teamVelocityPage is raw Team Velocity markup with one ld+json vehicle. The
// canonical link supplies the dealer host VDP paths absolutize against.
const teamVelocityPage = `<html><head>
<link rel="canonical" href="https://www.dealer.example/inventory/new/?model=tacoma">
</head><body>
<script type="application/ld+json">{"@type":"Car","vehicleIdentificationNumber":"3tylb5jn6rt400001","model":"Tacoma","vehicleModelDate":"2026","sku":"T40001","offers":{"@type":"Offer","price":"41999","url":"/inventory/3TYLB5JN6RT400001"}}</script>
</body></html>`

type fetchCall struct {
	url  string
	opts interfaces.ScrapeOptions
}

// fakeFetch scripts fetch responses through a per-call handler and records
// every call.
type fakeFetch struct {
	mu     sync.Mutex
	calls  []fetchCall
	handle func(ctx context.Context, call int, url string, opts interfaces.ScrapeOptions) (*models.FetchResult, error)
}

func (f *fakeFetch) Scrape(ctx context.Context, url string, opts interfaces.ScrapeOptions) (*models.FetchResult, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, fetchCall{url: url, opts: opts})
	f.mu.Unlock()
	return f.handle(ctx, n, url, opts)
}

func (f *fakeFetch) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetch) call(i int) fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type jobClose struct {
	status  string
	success int
	failed  int
}

type fakeJobStore struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*models.ScrapeJob
	tasks  map[int64]*models.ScrapeTask
	nextID int64
	closed map[uuid.UUID]jobClose
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:   make(map[uuid.UUID]*models.ScrapeJob),
		tasks:  make(map[int64]*models.ScrapeTask),
		closed: make(map[uuid.UUID]jobClose),
	}
}

func (f *fakeJobStore) CreateJob(ctx context.Context, job *models.ScrapeJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *job
	f.jobs[job.ID] = &c
	return nil
}

func (f *fakeJobStore) GetJob(ctx context.Context, id uuid.UUID) (*models.ScrapeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	c := *job
	return &c, nil
}

func (f *fakeJobStore) ListJobs(ctx context.Context, limit int) ([]*models.ScrapeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	jobs := make([]*models.ScrapeJob, 0, len(f.jobs))
	for _, job := range f.jobs {
		c := *job
		jobs = append(jobs, &c)
	}
	return jobs, nil
}

func (f *fakeJobStore) CloseJob(ctx context.Context, id uuid.UUID, status string, successCount, failCount int, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[id] = jobClose{status: status, success: successCount, failed: failCount}
	if job, ok := f.jobs[id]; ok {
		job.Status = status
		job.SuccessCount = successCount
		job.FailCount = failCount
		job.CompletedAt = &completedAt
	}
	return nil
}

func (f *fakeJobStore) CreateTask(ctx context.Context, task *models.ScrapeTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	task.ID = f.nextID
	c := *task
	f.tasks[task.ID] = &c
	return nil
}

func (f *fakeJobStore) UpdateTask(ctx context.Context, task *models.ScrapeTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *task
	f.tasks[task.ID] = &c
	return nil
}

func (f *fakeJobStore) ListTasks(ctx context.Context, jobID uuid.UUID) ([]*models.ScrapeTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tasks []*models.ScrapeTask
	for _, task := range f.tasks {
		if task.JobID == jobID {
			c := *task
			tasks = append(tasks, &c)
		}
	}
	return tasks, nil
}

func (f *fakeJobStore) closeRecord(id uuid.UUID) (jobClose, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	closed, ok := f.closed[id]
	return closed, ok
}

func (f *fakeJobStore) onlyJob(t *testing.T) *models.ScrapeJob {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.jobs, 1)
	for _, job := range f.jobs {
		c := *job
		return &c
	}
	return nil
}

type fakeDealerStore struct {
	mu      sync.Mutex
	dealers []*models.Dealer
	touched map[int64]time.Time
}

func newFakeDealerStore(dealers ...*models.Dealer) *fakeDealerStore {
	return &fakeDealerStore{dealers: dealers, touched: make(map[int64]time.Time)}
}

func (f *fakeDealerStore) UpsertDealer(ctx context.Context, dealer *models.Dealer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dealers = append(f.dealers, dealer)
	return nil
}

func (f *fakeDealerStore) GetDealer(ctx context.Context, id int64) (*models.Dealer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, dealer := range f.dealers {
		if dealer.ID == id {
			return dealer, nil
		}
	}
	return nil, nil
}

func (f *fakeDealerStore) ListDealers(ctx context.Context, filter interfaces.DealerFilter) ([]*models.Dealer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Dealer
	for _, dealer := range f.dealers {
		if filter.ActiveOnly && !dealer.IsActive {
			continue
		}
		if filter.Region != "" && dealer.Region != filter.Region {
			continue
		}
		out = append(out, dealer)
	}
	return out, nil
}

func (f *fakeDealerStore) TouchLastScraped(ctx context.Context, dealerID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[dealerID] = at
	return nil
}

func (f *fakeDealerStore) CountDealers(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dealers), nil
}

type absenceCall struct {
	dealerID int64
	model    string
	observed map[string]bool
}

type fakeIngest struct {
	mu       sync.Mutex
	batches  [][]*models.IngestRow
	absences []absenceCall
	sold     int
}

func (f *fakeIngest) IngestRows(ctx context.Context, rows []*models.IngestRow) (*models.IngestStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, rows)
	return &models.IngestStats{Observations: len(rows), ListingsUpserted: len(rows)}, nil
}

func (f *fakeIngest) MarkAbsent(ctx context.Context, dealerID int64, model string, observedVINs map[string]bool, observedAt time.Time) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.absences = append(f.absences, absenceCall{dealerID: dealerID, model: model, observed: observedVINs})
	return 0, f.sold, nil
}

type fakeBlobs struct {
	mu   sync.Mutex
	data map[string]string
	keys []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: make(map[string]string)}
}

func (f *fakeBlobs) PutText(ctx context.Context, key, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = content
	f.keys = append(f.keys, key)
	return key, nil
}

func (f *fakeBlobs) GetText(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeBlobs) Close() error { return nil }

type fakeEvents struct {
	mu     sync.Mutex
	events []models.Event
}

func (f *fakeEvents) Subscribe(eventType models.EventType, handler interfaces.EventHandler) error {
	return nil
}

func (f *fakeEvents) Publish(ctx context.Context, event models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEvents) PublishSync(ctx context.Context, event models.Event) error {
	return f.Publish(ctx, event)
}

func (f *fakeEvents) Close() error { return nil }

func (f *fakeEvents) types() []models.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []models.EventType
	for _, event := range f.events {
		types = append(types, event.Type)
	}
	return types
}

type harness struct {
	store   *fakeJobStore
	dealers *fakeDealerStore
	fetch   *fakeFetch
	ingest  *fakeIngest
	blobs   *fakeBlobs
	events  *fakeEvents
	service *Service
	roster  []*models.Dealer
}

func newHarness(t *testing.T, fetchFake *fakeFetch, dealers ...*models.Dealer) *harness {
	t.Helper()
	h := &harness{
		store:   newFakeJobStore(),
		dealers: newFakeDealerStore(dealers...),
		fetch:   fetchFake,
		ingest:  &fakeIngest{},
		blobs:   newFakeBlobs(),
		events:  &fakeEvents{},
		roster:  dealers,
	}
	h.service = NewService(h.store, h.dealers, h.fetch, h.ingest, h.blobs, h.events,
		parsers.DefaultModelRegistry(), common.ScrapeConfig{}, arbor.NewLogger()).(*Service)
	return h
}

func testDealer(id int64, backend models.Backend) *models.Dealer {
	return &models.Dealer{
		ID:                   id,
		Name:                 fmt.Sprintf("Dealer %d", id),
		HomepageURL:          "https://www.dealer.example",
		BackendType:          string(backend),
		InventoryURLTemplate: "{homepage_url}/inventory/new/?model={model_slug}",
		IsActive:             true,
	}
}

func TestRunJobRetriesThrottledFetch(t *testing.T) {
	fetchFake := &fakeFetch{handle: func(ctx context.Context, call int, url string, opts interfaces.ScrapeOptions) (*models.FetchResult, error) {
		if call == 0 {
			return nil, &fetch.RetryableError{Op: "scrape", URL: url, StatusCode: 429}
		}
		return &models.FetchResult{
			URL:        url,
			Markdown:   "# Inventory",
			RawHTML:    teamVelocityPage,
			StatusCode: 200,
			Source:     models.FetchSourceScrape,
		}, nil
	}}
	h := newHarness(t, fetchFake, testDealer(1, models.BackendTeamVelocity))

	summary, err := h.service.RunJob(context.Background(), h.roster, "Tacoma")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusSuccess, summary.Status)
	assert.Equal(t, 1, summary.Dealers)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 0, summary.Failed)

	require.Equal(t, 2, fetchFake.callCount())
	assert.Equal(t, "https://www.dealer.example/inventory/new/?model=tacoma", fetchFake.call(0).url)
	assert.False(t, fetchFake.call(0).opts.AllowExtract)
	// The extract fallback is reserved for the final attempt.
	assert.True(t, fetchFake.call(1).opts.AllowExtract)

	tasks, err := h.store.ListTasks(context.Background(), summary.JobID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskStatusSuccess, tasks[0].Status)
	assert.Equal(t, 2, tasks[0].Attempt)
	require.NotNil(t, tasks[0].HTTPStatus)
	assert.Equal(t, 200, *tasks[0].HTTPStatus)

	require.Len(t, h.ingest.batches, 1)
	require.Len(t, h.ingest.batches[0], 1)
	row := h.ingest.batches[0][0]
	assert.Equal(t, "3TYLB5JN6RT400001", row.VIN)
	assert.Equal(t, models.SourceInventoryList, row.Source)
	require.NotNil(t, row.SourceRank)
	assert.Equal(t, 50, *row.SourceRank)
	assert.Equal(t, summary.JobID, row.JobID)
	require.NotNil(t, row.Vehicle)
	assert.Equal(t, "Toyota", row.Vehicle.Make)
	assert.Equal(t, "Tacoma", row.Vehicle.Model)

	require.Len(t, h.blobs.keys, 1)
	assert.True(t, strings.HasSuffix(h.blobs.keys[0], ".md"))
	assert.Equal(t, h.blobs.keys[0], row.RawBlobKey)

	require.Len(t, h.ingest.absences, 1)
	assert.True(t, h.ingest.absences[0].observed["3TYLB5JN6RT400001"])

	_, touched := h.dealers.touched[1]
	assert.True(t, touched)

	types := h.events.types()
	assert.Contains(t, types, models.EventJobStarted)
	assert.Contains(t, types, models.EventTaskComplete)
	assert.Contains(t, types, models.EventJobCompleted)
}

func TestRunJobTerminalFetchMakesPartial(t *testing.T) {
	second := testDealer(2, models.BackendTeamVelocity)
	second.HomepageURL = "https://www.second.example"

	fetchFake := &fakeFetch{handle: func(ctx context.Context, call int, url string, opts interfaces.ScrapeOptions) (*models.FetchResult, error) {
		if strings.Contains(url, "second.example") {
			return nil, &fetch.TerminalError{Op: "scrape", URL: url, StatusCode: 403}
		}
		return &models.FetchResult{
			URL:        url,
			RawHTML:    teamVelocityPage,
			StatusCode: 200,
			Source:     models.FetchSourceScrape,
		}, nil
	}}
	h := newHarness(t, fetchFake, testDealer(1, models.BackendTeamVelocity), second)

	summary, err := h.service.RunJob(context.Background(), h.roster, "Tacoma")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusPartial, summary.Status)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Failed)
	// Terminal failures burn no extra attempts.
	assert.Equal(t, 2, fetchFake.callCount())

	closed := h.store.closed[summary.JobID]
	assert.Equal(t, models.JobStatusPartial, closed.status)
	assert.Equal(t, 1, closed.success)
	assert.Equal(t, 1, closed.failed)

	tasks, err := h.store.ListTasks(context.Background(), summary.JobID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	byDealer := map[int64]*models.ScrapeTask{}
	for _, task := range tasks {
		byDealer[task.DealerID] = task
	}
	assert.Equal(t, models.TaskStatusSuccess, byDealer[1].Status)
	assert.Equal(t, models.TaskStatusFailed, byDealer[2].Status)
	assert.Contains(t, byDealer[2].Error, "status 403")
}

func TestRunJobURLBuildFailure(t *testing.T) {
	dealer := testDealer(7, models.BackendDealerCom)
	dealer.InventoryURLTemplate = "{homepage_url}/VehicleSearchResults?dealer={dealer_code}&model={model_slug}"

	fetchFake := &fakeFetch{handle: func(ctx context.Context, call int, url string, opts interfaces.ScrapeOptions) (*models.FetchResult, error) {
		t.Error("fetch should not be called for an unbuildable URL")
		return nil, nil
	}}
	h := newHarness(t, fetchFake, dealer)

	summary, err := h.service.RunJob(context.Background(), h.roster, "Tacoma")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFailed, summary.Status)
	assert.Equal(t, 0, summary.Success)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, fetchFake.callCount())

	tasks, err := h.store.ListTasks(context.Background(), summary.JobID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskStatusFailed, tasks[0].Status)
	assert.Contains(t, tasks[0].Error, "dealer_code")
}

func TestRunJobUnknownBackend(t *testing.T) {
	fetchFake := &fakeFetch{handle: func(ctx context.Context, call int, url string, opts interfaces.ScrapeOptions) (*models.FetchResult, error) {
		t.Error("fetch should not be called for an unknown backend")
		return nil, nil
	}}
	h := newHarness(t, fetchFake, testDealer(3, "WEIRD_PLATFORM"))

	summary, err := h.service.RunJob(context.Background(), h.roster, "Tacoma")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFailed, summary.Status)
	tasks, err := h.store.ListTasks(context.Background(), summary.JobID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Contains(t, tasks[0].Error, "no parser for backend WEIRD_PLATFORM")
	assert.Equal(t, 0, fetchFake.callCount())
}

func TestRunJobEmptyInventory(t *testing.T) {
	fetchFake := &fakeFetch{handle: func(ctx context.Context, call int, url string, opts interfaces.ScrapeOptions) (*models.FetchResult, error) {
		return &models.FetchResult{
			URL:        url,
			Markdown:   "## New Tacoma Inventory\n\n0 vehicles matched your search.",
			StatusCode: 200,
			Source:     models.FetchSourceScrape,
		}, nil
	}}
	h := newHarness(t, fetchFake, testDealer(1, models.BackendDealerCom))

	summary, err := h.service.RunJob(context.Background(), h.roster, "Tacoma")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusSuccess, summary.Status)
	assert.Empty(t, h.ingest.batches)

	// The absence pass still runs so existing listings age toward sold.
	require.Len(t, h.ingest.absences, 1)
	assert.Equal(t, int64(1), h.ingest.absences[0].dealerID)
	assert.Equal(t, "Tacoma", h.ingest.absences[0].model)
	assert.Empty(t, h.ingest.absences[0].observed)

	require.Len(t, h.blobs.keys, 1)
	assert.True(t, strings.HasSuffix(h.blobs.keys[0], ".md"))
}

func TestRunModelJobFiltersDealers(t *testing.T) {
	west := testDealer(1, models.BackendTeamVelocity)
	west.Region = "west"
	inactive := testDealer(2, models.BackendTeamVelocity)
	inactive.Region = "west"
	inactive.IsActive = false
	east := testDealer(3, models.BackendTeamVelocity)
	east.Region = "east"

	fetchFake := &fakeFetch{handle: func(ctx context.Context, call int, url string, opts interfaces.ScrapeOptions) (*models.FetchResult, error) {
		return &models.FetchResult{
			URL:        url,
			RawHTML:    teamVelocityPage,
			StatusCode: 200,
			Source:     models.FetchSourceScrape,
		}, nil
	}}
	h := newHarness(t, fetchFake, west, inactive, east)

	summary, err := h.service.RunModelJob(context.Background(), "Tacoma", "west")
	require.NoError(t, err)

	assert.Equal(t, "west", summary.Region)
	assert.Equal(t, 1, summary.Dealers)
	assert.Equal(t, 1, fetchFake.callCount())
}

func TestStartModelJobRunsDetached(t *testing.T) {
	release := make(chan struct{})
	fetchFake := &fakeFetch{handle: func(ctx context.Context, call int, url string, opts interfaces.ScrapeOptions) (*models.FetchResult, error) {
		<-release
		return &models.FetchResult{
			URL:        url,
			RawHTML:    teamVelocityPage,
			StatusCode: 200,
			Source:     models.FetchSourceScrape,
		}, nil
	}}
	h := newHarness(t, fetchFake, testDealer(1, models.BackendTeamVelocity))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, err := h.service.StartModelJob(ctx, "Tacoma", "")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Equal(t, 1, job.TargetCount)

	stored, err := h.store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.JobStatusRunning, stored.Status)

	// The job must survive the request context that started it.
	cancel()
	close(release)

	assert.Eventually(t, func() bool {
		closed, ok := h.store.closeRecord(job.ID)
		return ok && closed.status == models.JobStatusSuccess
	}, 5*time.Second, 10*time.Millisecond)

	require.Len(t, h.ingest.batches, 1)
}

func TestCancelJobFailsPendingTasks(t *testing.T) {
	started := make(chan struct{})
	fetchFake := &fakeFetch{handle: func(ctx context.Context, call int, url string, opts interfaces.ScrapeOptions) (*models.FetchResult, error) {
		if call == 0 {
			close(started)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := newHarness(t, fetchFake, testDealer(1, models.BackendTeamVelocity))

	type jobResult struct {
		summary *models.JobSummary
		err     error
	}
	results := make(chan jobResult, 1)
	go func() {
		summary, err := h.service.RunJob(context.Background(), h.roster, "Tacoma")
		results <- jobResult{summary: summary, err: err}
	}()

	<-started
	job := h.store.onlyJob(t)
	assert.True(t, h.service.CancelJob(job.ID))

	res := <-results
	require.NoError(t, res.err)
	assert.Equal(t, models.JobStatusFailed, res.summary.Status)
	assert.Equal(t, 1, res.summary.Failed)

	tasks, err := h.store.ListTasks(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskStatusFailed, tasks[0].Status)
	assert.Contains(t, tasks[0].Error, "task cancelled")

	// A finished job is no longer cancellable.
	assert.False(t, h.service.CancelJob(job.ID))
}

func TestRunJobNoDealers(t *testing.T) {
	h := newHarness(t, &fakeFetch{})

	_, err := h.service.RunJob(context.Background(), nil, "Tacoma")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dealers")
}
