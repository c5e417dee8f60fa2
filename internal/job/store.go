package job

import "context"

// Store persists job records.
//
// Save inserts when ID is zero and updates otherwise, returning the stored
// record. Implementations set UpdatedAt on every save and CreatedAt only on
// insert. Lookups of missing rows return an apperrors NotFound error; any
// other failure is an apperrors Persistence error.
type Store interface {
	Save(ctx context.Context, j *Job) (*Job, error)
	FindByID(ctx context.Context, id int64) (*Job, error)
	FindAll(ctx context.Context) ([]Job, error)
	FindAllByStatus(ctx context.Context, status Status) ([]Job, error)
	FindByContainerID(ctx context.Context, containerID string) (*Job, error)
}
