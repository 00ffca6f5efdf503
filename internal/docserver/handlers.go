package docserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmined/notesync/internal/docsdk"
)

type PageHandler struct {
	store *PageStore
}

func NewPageHandler(store *PageStore) *PageHandler {
	return &PageHandler{store: store}
}

func (h *PageHandler) Get(ctx *gin.Context) {
	page, err := h.store.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, page)
}

func (h *PageHandler) Children(ctx *gin.Context) {
	pages, err := h.store.Children(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, &docsdk.ChildrenResponse{Pages: pages})
}

func (h *PageHandler) Content(ctx *gin.Context) {
	id := ctx.Param("id")
	content, err := h.store.Content(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, &docsdk.ContentResponse{ID: id, Content: content})
}

func (h *PageHandler) Create(ctx *gin.Context) {
	var params docsdk.CreatePageParams
	if err := ctx.ShouldBindJSON(&params); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	if strings.TrimSpace(params.Title) == "" {
		badRequest(ctx, "title is required")
		return
	}
	if params.Kind == "" {
		params.Kind = docsdk.KindPage
	}
	if params.Kind != docsdk.KindPage && params.Kind != docsdk.KindCollection {
		badRequest(ctx, "kind must be page or collection")
		return
	}

	page, err := h.store.Create(ctx.Request.Context(), &params)
	if err != nil {
		respondError(ctx, err)
		return
	}
	slog.Info("page create", "id", page.ID, "parent", page.ParentID, "kind", page.Kind, "by", ctx.GetString(subjectContextKey))
	ctx.PureJSON(http.StatusCreated, page)
}

func (h *PageHandler) Update(ctx *gin.Context) {
	var params docsdk.UpdatePageParams
	if err := ctx.ShouldBindJSON(&params); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	if params.Title != nil && strings.TrimSpace(*params.Title) == "" {
		badRequest(ctx, "title must not be empty")
		return
	}

	page, err := h.store.Update(ctx.Request.Context(), ctx.Param("id"), &params)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, page)
}

func (h *PageHandler) Archive(ctx *gin.Context) {
	page, err := h.store.Archive(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	slog.Info("page archive", "id", page.ID, "by", ctx.GetString(subjectContextKey))
	ctx.PureJSON(http.StatusOK, page)
}

func badRequest(ctx *gin.Context, message string) {
	ctx.PureJSON(http.StatusBadRequest, docsdk.NewAPIError(docsdk.CodeInvalidRequest, message))
}

func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		ctx.PureJSON(http.StatusNotFound, docsdk.NewAPIError(docsdk.CodePageNotFound, err.Error()))
	case errors.Is(err, ErrArchived):
		ctx.PureJSON(http.StatusConflict, docsdk.NewAPIError(docsdk.CodePageArchived, err.Error()))
	case errors.Is(err, ErrInvalidParent):
		badRequest(ctx, err.Error())
	default:
		slog.Error("page store", "path", ctx.FullPath(), "error", err)
		ctx.PureJSON(http.StatusInternalServerError, docsdk.NewAPIError(docsdk.CodeInternalError, "internal error"))
	}
}
