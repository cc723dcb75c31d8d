// Package mediakit is an embeddable toolkit for multimodal content search:
// hosts ingest videos, images and text, mediakit embeds them through an
// external provider, stores segment vectors in a pgvector-backed index, and
// answers nearest-neighbour queries with playable results.
//
// The pipeline package is the recommended entrypoint; the lower-level
// packages (provider, embed, index, storage, results) are usable on their
// own when a host needs finer control.
package mediakit

import (
	"errors"
	"net/http"

	"github.com/doujins-org/mediakit/content"
	"github.com/doujins-org/mediakit/embed"
	"github.com/doujins-org/mediakit/index"
	"github.com/doujins-org/mediakit/provider"
)

// HTTPStatus maps pipeline errors onto HTTP status codes for hosts that
// expose ingestion and search over HTTP. Unknown errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, content.ErrInvalidContent):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, index.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, embed.ErrPollTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, embed.ErrTaskFailed),
		errors.Is(err, embed.ErrEmptyEmbedding):
		return http.StatusUnprocessableEntity
	case errors.Is(err, embed.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
