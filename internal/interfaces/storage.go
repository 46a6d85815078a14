package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ternarybob/lotwatch/internal/models"
)

// DealerFilter narrows dealer catalog queries. Zero value selects all
// active dealers.
type DealerFilter struct {
	Region     string
	IDs        []int64
	ActiveOnly bool
}

// DealerStorage - dealer catalog persistence
type DealerStorage interface {
	UpsertDealer(ctx context.Context, dealer *models.Dealer) error
	GetDealer(ctx context.Context, id int64) (*models.Dealer, error)
	ListDealers(ctx context.Context, filter DealerFilter) ([]*models.Dealer, error)
	TouchLastScraped(ctx context.Context, dealerID int64, at time.Time) error
	CountDealers(ctx context.Context) (int, error)
}

// JobStorage - scrape job and task persistence
type JobStorage interface {
	CreateJob(ctx context.Context, job *models.ScrapeJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.ScrapeJob, error)
	ListJobs(ctx context.Context, limit int) ([]*models.ScrapeJob, error)
	CloseJob(ctx context.Context, id uuid.UUID, status string, successCount, failCount int, completedAt time.Time) error

	// CreateTask assigns the task id on return.
	CreateTask(ctx context.Context, task *models.ScrapeTask) error
	UpdateTask(ctx context.Context, task *models.ScrapeTask) error
	ListTasks(ctx context.Context, jobID uuid.UUID) ([]*models.ScrapeTask, error)
}

// ListingFilter narrows listing queries for the read API.
type ListingFilter struct {
	DealerID int64
	Model    string
	Status   string
	Limit    int
}

// ListingStorage - read-side queries over reconciled market state
type ListingStorage interface {
	GetListing(ctx context.Context, dealerID int64, vin string) (*models.Listing, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]*models.Listing, error)
	GetVehicle(ctx context.Context, vin string) (*models.Vehicle, error)
	ListObservations(ctx context.Context, dealerID int64, vin string, limit int) ([]*models.Observation, error)
	ListPriceEvents(ctx context.Context, vin string, limit int) ([]*models.PriceEvent, error)
}

// IngestTx is the transactional surface the reconciler writes through. Get
// methods return (nil, nil) when the row does not exist.
type IngestTx interface {
	GetVehicle(ctx context.Context, vin string) (*models.Vehicle, error)
	UpsertVehicle(ctx context.Context, vehicle *models.Vehicle) error
	GetListing(ctx context.Context, dealerID int64, vin string) (*models.Listing, error)
	PutListing(ctx context.Context, listing *models.Listing) error
	InsertObservation(ctx context.Context, obs *models.Observation) error
	InsertPriceEvent(ctx context.Context, event *models.PriceEvent) error

	// ListAbsenceCandidates returns listings for the dealer whose vehicle
	// model matches and whose source rank is null or at most maxRank.
	ListAbsenceCandidates(ctx context.Context, dealerID int64, model string, maxRank int) ([]*models.Listing, error)
}

// IngestStorage - transactional store for reconcile batches. The callback
// runs inside one transaction; an error rolls the batch back.
type IngestStorage interface {
	InTx(ctx context.Context, fn func(tx IngestTx) error) error
}
