package pdf

import (
	"context"

	"github.com/Mahaseias/sendzap/internal/domain/proposal"
)

// Renderer turns a proposal into document bytes. Implementations must return
// an error instead of a blank document when required fields are missing.
type Renderer interface {
	Render(ctx context.Context, p proposal.Context) ([]byte, error)
}
