package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/docstore/pkg/controller"
	"github.com/nimburion/docstore/pkg/middleware/requestsize"
	"github.com/nimburion/docstore/pkg/store"
)

// documentHandler maps the document routes onto a store client.
type documentHandler struct {
	client         store.Client
	maxRequestSize int64
}

// get serves GET /v1/documents?key=a&key=b. Every requested key appears in
// the response; missing ones map to null.
func (h *documentHandler) get(c *gin.Context) {
	docs, err := h.client.Get(c.Request.Context(), c.QueryArray("key"))
	if err != nil {
		controller.Error(c, err)
		return
	}
	controller.Success(c, docs)
}

// set serves PUT /v1/documents with a JSON object mapping keys to documents.
func (h *documentHandler) set(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			requestsize.TooLarge(c, h.maxRequestSize)
			return
		}
		controller.Error(c, controller.NewValidationError("failed to read request body"))
		return
	}

	payload, err := store.DecodeDocument(raw)
	if err != nil {
		controller.Error(c, controller.NewValidationError("request body must be a JSON object mapping keys to documents"))
		return
	}

	if err := h.client.Set(c.Request.Context(), payload); err != nil {
		controller.Error(c, err)
		return
	}
	controller.NoContent(c)
}

// remove serves DELETE /v1/documents/:key.
func (h *documentHandler) remove(c *gin.Context) {
	if err := h.client.Remove(c.Request.Context(), c.Param("key")); err != nil {
		controller.Error(c, err)
		return
	}
	controller.NoContent(c)
}

// removeAll serves DELETE /v1/documents.
func (h *documentHandler) removeAll(c *gin.Context) {
	if err := h.client.RemoveAll(c.Request.Context()); err != nil {
		controller.Error(c, err)
		return
	}
	controller.NoContent(c)
}
