package port

import (
	"context"

	"github.com/vertextoedge/debrid-sync/internal/domain"
)

// DebridClient is the remote fetch service. Every failure is returned as an
// error, *domain.RemoteError for anything the provider or the network caused.
type DebridClient interface {
	// RegisterMagnet submits a magnet and returns the remote job id
	RegisterMagnet(ctx context.Context, magnet string) (string, error)

	// GetJobStatus returns the normalized state of a remote job
	GetJobStatus(ctx context.Context, jobID string) (*domain.RemoteJobStatus, error)

	// UnlockLink converts a provider link into a directly fetchable URL.
	// Results are short-lived and must not be cached.
	UnlockLink(ctx context.Context, link string) (string, error)
}
