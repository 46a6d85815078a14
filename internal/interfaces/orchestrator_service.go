package interfaces

import (
	"context"

	"github.com/google/uuid"

	"github.com/ternarybob/lotwatch/internal/models"
)

// OrchestratorService fans a model scrape out across dealers and closes the
// job once every task has finished.
type OrchestratorService interface {
	// RunJob scrapes the given dealers for one model and blocks until the
	// job is closed.
	RunJob(ctx context.Context, dealers []*models.Dealer, model string) (*models.JobSummary, error)

	// RunModelJob loads active dealers (optionally filtered by region) and
	// runs a job for them.
	RunModelJob(ctx context.Context, model, region string) (*models.JobSummary, error)

	// StartJob creates the job record for the given dealers and runs it
	// detached, returning once the row exists.
	StartJob(ctx context.Context, dealers []*models.Dealer, model string) (*models.ScrapeJob, error)

	// StartModelJob is StartJob over the active dealers of a region.
	StartModelJob(ctx context.Context, model, region string) (*models.ScrapeJob, error)

	// CancelJob signals a running job to stop. Pending tasks fail at their
	// next suspension point. Returns false when the job is not running.
	CancelJob(id uuid.UUID) bool
}
