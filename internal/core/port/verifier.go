package port

import (
	"context"

	"github.com/medconnect/rtcore/internal/core/domain"
)

// IdentityVerifier is the external collaborator that resolves a bearer
// credential to a verified identity, or rejects the connection outright.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (domain.Identity, error)
}
