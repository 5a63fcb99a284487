// -----------------------------------------------------------------------
// Document extraction - plain text from uploaded holdings statements
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
)

// DocumentExtractor converts raw document bytes into plain text.
// contentType is a MIME type or a file extension such as ".pdf".
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}
