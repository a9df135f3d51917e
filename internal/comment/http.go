// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comment

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/quill/internal/platform/middleware"
	requestutil "github.com/taibuivan/quill/internal/platform/request"
	"github.com/taibuivan/quill/internal/platform/respond"
	"github.com/taibuivan/quill/pkg/pagination"
)

// populateReplies is the value of ?populate= that nests replies into a listing.
const populateReplies = "replies"

// # Handler Implementation

// Handler implements the HTTP layer for comment threads.
type Handler struct {
	service *Service
}

// NewHandler constructs a new comment [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router mounted at /api/v1/comments.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// ## Public Reading
	router.Get("/novel/{novelRef}", handler.listNovelComments)
	router.Get("/{id}/replies", handler.listReplies)

	// ## Authoring (Authenticated)
	router.Group(func(user chi.Router) {
		user.Use(middleware.RequireAuth)

		user.Post("/", handler.createComment)
		user.Put("/{id}", handler.updateComment)
		user.Delete("/{id}", handler.deleteComment)
	})

	return router
}

// # Reading

/*
GET /api/v1/comments/novel/{novelRef}.

Request:
  - page, limit: int
  - populate: "replies" to nest replies; recursive=true is accepted as an alias
  - depth: int (reply levels, default 1, capped at 5)

Response:
  - 200: {data: []Comment, pagination}
*/
func (handler *Handler) listNovelComments(writer http.ResponseWriter, request *http.Request) {
	novelRef := requestutil.ID(request, "novelRef")
	params := pagination.FromRequest(request)

	comments, meta, err := handler.service.ListNovelComments(request.Context(), novelRef, params, treeOptions(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, comments, meta)
}

/*
GET /api/v1/comments/{id}/replies.

Request:
  - recursive: bool
  - depth: int

Response:
  - 200: {data: []Comment}
  - 404: NOT_FOUND: Parent comment does not exist
*/
func (handler *Handler) listReplies(writer http.ResponseWriter, request *http.Request) {
	replies, err := handler.service.ListReplies(request.Context(), requestutil.ID(request, "id"), treeOptions(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.List(writer, replies)
}

// # Authoring

/*
POST /api/v1/comments.

Request:
  - body: CreateInput

Response:
  - 201: Comment
  - 400: VALIDATION_ERROR
  - 401: AUTH_REQUIRED
  - 404: NOT_FOUND: Parent missing or deleted
*/
func (handler *Handler) createComment(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input CreateInput
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	created, err := handler.service.CreateComment(request.Context(), userID, input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, created)
}

/*
PUT /api/v1/comments/{id}.

Response:
  - 200: Comment
  - 403: FORBIDDEN: Caller is not the author
  - 404: NOT_FOUND: Missing or deleted
*/
func (handler *Handler) updateComment(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input UpdateInput
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	updated, err := handler.service.UpdateComment(request.Context(), userID, requestutil.ID(request, "id"), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, updated)
}

/*
DELETE /api/v1/comments/{id}.

Response:
  - 200: success envelope without data
  - 409: ALREADY_DELETED
*/
func (handler *Handler) deleteComment(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.DeleteComment(request.Context(), userID, requestutil.ID(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Success(writer)
}

func treeOptions(request *http.Request) TreeOptions {
	populate := request.URL.Query().Get("populate") == populateReplies || requestutil.QueryBool(request, "recursive")
	return TreeOptions{
		Populate: populate,
		Depth:    requestutil.QueryInt(request, "depth", 0),
	}
}
