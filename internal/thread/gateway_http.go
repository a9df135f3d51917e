// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package thread

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/taibuivan/quill/internal/platform/apperr"
	"github.com/taibuivan/quill/internal/platform/constants"
	"github.com/taibuivan/quill/pkg/pagination"
)

// maxResponseBytes bounds a single API response body.
const maxResponseBytes = 4 << 20

// # HTTP Gateway

// HTTPGateway implements [Gateway] against the comment REST API.
//
// The response envelope decides success: any status other than "success" is a
// failure whatever the HTTP code says. Records are normalised and validated
// before they leave the adapter, so the engine only ever sees strict values.
type HTTPGateway struct {
	baseURL       string
	client        *http.Client
	accessToken   string
	prefetchDepth int
	validate      *validator.Validate
	logger        *slog.Logger
}

// HTTPGatewayOption customises an [HTTPGateway].
type HTTPGatewayOption func(*HTTPGateway)

// WithHTTPClient replaces the default client (and its timeout).
func WithHTTPClient(client *http.Client) HTTPGatewayOption {
	return func(gateway *HTTPGateway) { gateway.client = client }
}

// WithAccessToken attaches a bearer token to every request.
func WithAccessToken(token string) HTTPGatewayOption {
	return func(gateway *HTTPGateway) { gateway.accessToken = token }
}

// WithPrefetchDepth asks top-level listings to carry this many reply levels.
func WithPrefetchDepth(depth int) HTTPGatewayOption {
	return func(gateway *HTTPGateway) { gateway.prefetchDepth = depth }
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(logger *slog.Logger) HTTPGatewayOption {
	return func(gateway *HTTPGateway) { gateway.logger = logger }
}

// NewHTTPGateway builds a gateway rooted at baseURL (e.g. http://host/api/v1).
func NewHTTPGateway(baseURL string, opts ...HTTPGatewayOption) *HTTPGateway {
	gateway := &HTTPGateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
		validate: newRecordValidator(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(gateway)
	}
	return gateway
}

// ListTopLevel implements [Gateway].
func (gateway *HTTPGateway) ListTopLevel(ctx context.Context, novelRef string, page, pageSize int) (Page, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(pageSize))
	if gateway.prefetchDepth > 0 {
		query.Set("populate", "replies")
		query.Set("depth", strconv.Itoa(gateway.prefetchDepth))
	}

	data, err := gateway.do(ctx, http.MethodGet, "/comments/novel/"+url.PathEscape(novelRef), query, nil)
	if err != nil {
		return Page{}, err
	}

	items, meta, err := decodeList(data)
	if err != nil {
		return Page{}, err
	}

	nodes, err := gateway.normaliseAll(items, "")
	if err != nil {
		return Page{}, err
	}

	result := Page{Items: nodes}
	if meta != nil {
		result.Pagination = pagination.Meta{Page: meta.Page, Pages: meta.Pages, Total: meta.Total, Limit: meta.Limit}
	} else {
		result.Pagination = pagination.Meta{Page: page, Limit: pageSize}
	}
	return result, nil
}

// ListReplies implements [Gateway].
func (gateway *HTTPGateway) ListReplies(ctx context.Context, parentRef string, opts ReplyOptions) ([]Node, error) {
	query := url.Values{}
	if opts.Recursive {
		query.Set("recursive", "true")
		if opts.Depth > 0 {
			query.Set("depth", strconv.Itoa(opts.Depth))
		}
	}

	data, err := gateway.do(ctx, http.MethodGet, "/comments/"+url.PathEscape(parentRef)+"/replies", query, nil)
	if err != nil {
		return nil, err
	}

	items, _, err := decodeList(data)
	if err != nil {
		return nil, err
	}
	return gateway.normaliseAll(items, parentRef)
}

// Create implements [Gateway].
func (gateway *HTTPGateway) Create(ctx context.Context, input CreateInput) (Comment, error) {
	body := map[string]string{"content": input.Content}
	if input.NovelRef != "" {
		body["novelRef"] = input.NovelRef
	}
	if input.ParentRef != "" {
		body["parentRef"] = input.ParentRef
	}

	data, err := gateway.do(ctx, http.MethodPost, "/comments", nil, body)
	if err != nil {
		return Comment{}, err
	}
	return gateway.decodeSingle(data, input.ParentRef)
}

// Update implements [Gateway].
func (gateway *HTTPGateway) Update(ctx context.Context, id, content string) (Comment, error) {
	data, err := gateway.do(ctx, http.MethodPut, "/comments/"+url.PathEscape(id), nil, map[string]string{"content": content})
	if err != nil {
		return Comment{}, err
	}
	return gateway.decodeSingle(data, "")
}

// Remove implements [Gateway].
func (gateway *HTTPGateway) Remove(ctx context.Context, id string) error {
	_, err := gateway.do(ctx, http.MethodDelete, "/comments/"+url.PathEscape(id), nil, nil)
	return err
}

// # Transport

type wireEnvelope struct {
	Status  string              `json:"status"`
	Data    json.RawMessage     `json:"data"`
	Message string              `json:"message"`
	Code    string              `json:"code"`
	Details []apperr.FieldError `json:"details"`
}

// do performs one round-trip and returns the envelope's data member.
func (gateway *HTTPGateway) do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	target := gateway.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		reader = bytes.NewReader(raw)
	}

	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if gateway.accessToken != "" {
		request.Header.Set(constants.HeaderAuthorization, "Bearer "+gateway.accessToken)
	}

	startTime := time.Now()
	response, err := gateway.client.Do(request)
	if err != nil {
		gateway.logger.WarnContext(ctx, "comment_api_unreachable",
			slog.String("method", method),
			slog.String("path", path),
			slog.Any("error", err),
		)
		return nil, apperr.Network(err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, apperr.Network(err)
	}

	gateway.logger.DebugContext(ctx, "comment_api_call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", response.StatusCode),
		slog.Int64("latency_ms", time.Since(startTime).Milliseconds()),
	)

	var envelope wireEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperr.MalformedResponse(fmt.Sprintf("Response is not a JSON envelope (HTTP %d)", response.StatusCode))
	}

	switch envelope.Status {
	case constants.StatusSuccess:
		return envelope.Data, nil
	case constants.StatusFail, constants.StatusError:
		return nil, envelopeError(envelope, response.StatusCode)
	default:
		return nil, apperr.MalformedResponse(fmt.Sprintf("Unknown envelope status %q", envelope.Status))
	}
}

// envelopeError rebuilds the store's error from a failure envelope.
func envelopeError(envelope wireEnvelope, httpStatus int) *apperr.AppError {
	code := envelope.Code
	if code == "" {
		code = codeForStatus(httpStatus, envelope.Status)
	}

	message := envelope.Message
	if message == "" {
		message = "The comment service rejected the request"
	}

	return &apperr.AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: apperr.StatusFor(code),
		Details:    envelope.Details,
	}
}

// codeForStatus guesses an error code when the envelope carries none.
func codeForStatus(httpStatus int, envelopeStatus string) string {
	switch httpStatus {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperr.CodeValidation
	case http.StatusUnauthorized:
		return apperr.CodeAuthRequired
	case http.StatusForbidden:
		return apperr.CodeForbidden
	case http.StatusNotFound:
		return apperr.CodeNotFound
	case http.StatusConflict:
		return apperr.CodeConflict
	case http.StatusTooManyRequests:
		return apperr.CodeRateLimited
	}
	if envelopeStatus == constants.StatusFail {
		return apperr.CodeValidation
	}
	return apperr.CodeInternal
}

// # Normalisation

type wirePagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
	Limit int `json:"limit"`
}

type wireList struct {
	Data       []json.RawMessage `json:"data"`
	Items      []json.RawMessage `json:"items"`
	Pagination *wirePagination   `json:"pagination"`
}

// decodeList accepts {data: [...], pagination}, {items: [...]} or a bare array.
func decodeList(data json.RawMessage) ([]json.RawMessage, *wirePagination, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil, apperr.MalformedResponse("Listing has no data")
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, nil, apperr.MalformedResponse("Listing is not an array")
		}
		return items, nil, nil
	}

	var list wireList
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, nil, apperr.MalformedResponse("Listing has an unexpected shape")
	}
	if list.Data == nil {
		list.Data = list.Items
	}
	if list.Data == nil {
		return nil, nil, apperr.MalformedResponse("Listing has no data array")
	}
	return list.Data, list.Pagination, nil
}

func (gateway *HTTPGateway) decodeSingle(data json.RawMessage, parentRef string) (Comment, error) {
	node, err := gateway.normalise(data, parentRef, "")
	if err != nil {
		return Comment{}, err
	}
	return node.Comment, nil
}

func (gateway *HTTPGateway) normaliseAll(items []json.RawMessage, parentRef string) ([]Node, error) {
	nodes := make([]Node, 0, len(items))
	for _, item := range items {
		node, err := gateway.normalise(item, parentRef, "")
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// wireComment accepts every field spelling the API has been seen to use.
type wireComment struct {
	ID            string          `json:"id"`
	LegacyID      string          `json:"_id"`
	NovelRef      json.RawMessage `json:"novelRef"`
	Novel         json.RawMessage `json:"novel"`
	ParentRef     json.RawMessage `json:"parentRef"`
	Parent        json.RawMessage `json:"parent"`
	ParentComment json.RawMessage `json:"parentComment"`
	Author        json.RawMessage `json:"author"`
	Content       string          `json:"content"`
	CreatedAt     time.Time       `json:"createdAt"`
	IsDeleted     bool            `json:"isDeleted"`
	ReplyCount    *int            `json:"replyCount"`
	Replies       json.RawMessage `json:"replies"`
}

// record is the strict shape every wire comment must satisfy.
type record struct {
	ID         string    `json:"id" validate:"required"`
	NovelRef   string    `json:"novelRef" validate:"required"`
	ParentRef  string    `json:"parentRef" validate:"omitempty,nefield=ID"`
	Content    string    `json:"content" validate:"required_if=IsDeleted false,max=1000"`
	CreatedAt  time.Time `json:"createdAt" validate:"required"`
	IsDeleted  bool      `json:"isDeleted"`
	ReplyCount int       `json:"replyCount" validate:"gte=0"`
}

/*
normalise converts one wire comment (and its nested replies) into a [Node].

Nested replies default their parentRef to the enclosing comment and their
novelRef to the enclosing novel when the payload omits them. Explicit values
are kept as sent, so the forest can reject a payload that contradicts itself.
*/
func (gateway *HTTPGateway) normalise(raw json.RawMessage, parentRef, novelRef string) (Node, error) {
	var wire wireComment
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Node{}, apperr.MalformedResponse("Comment has an unexpected shape")
	}

	var err error
	rec := record{
		ID:        firstNonEmpty(wire.ID, wire.LegacyID),
		Content:   wire.Content,
		CreatedAt: wire.CreatedAt,
		IsDeleted: wire.IsDeleted,
	}

	if rec.NovelRef, err = firstRef(wire.NovelRef, wire.Novel); err != nil {
		return Node{}, err
	}
	if rec.NovelRef == "" {
		rec.NovelRef = novelRef
	}

	if rec.ParentRef, err = firstRef(wire.ParentRef, wire.Parent, wire.ParentComment); err != nil {
		return Node{}, err
	}
	if rec.ParentRef == "" {
		rec.ParentRef = parentRef
	}

	authorRef, authorName, err := decodeRef(wire.Author)
	if err != nil {
		return Node{}, err
	}

	node := Node{}
	replies := bytes.TrimSpace(wire.Replies)
	if len(replies) > 0 && !bytes.Equal(replies, []byte("null")) {
		var items []json.RawMessage
		if err := json.Unmarshal(replies, &items); err != nil {
			return Node{}, apperr.MalformedResponse("Comment replies are not an array")
		}
		node.Loaded = true
		node.Replies = make([]Node, 0, len(items))
		for _, item := range items {
			child, err := gateway.normalise(item, rec.ID, rec.NovelRef)
			if err != nil {
				return Node{}, err
			}
			node.Replies = append(node.Replies, child)
		}
	}

	switch {
	case wire.ReplyCount != nil:
		rec.ReplyCount = *wire.ReplyCount
	case node.Loaded:
		rec.ReplyCount = len(node.Replies)
	}

	if err := gateway.validate.Struct(rec); err != nil {
		return Node{}, malformedFromValidation(rec.ID, err)
	}

	node.Comment = Comment{
		ID:         rec.ID,
		NovelRef:   rec.NovelRef,
		ParentRef:  rec.ParentRef,
		AuthorRef:  authorRef,
		AuthorName: authorName,
		Content:    rec.Content,
		CreatedAt:  rec.CreatedAt,
		IsDeleted:  rec.IsDeleted,
		ReplyCount: rec.ReplyCount,
	}
	return node, nil
}

// firstRef returns the first non-empty reference among raw values, each of
// which may be null, a string or a populated object carrying an id.
func firstRef(values ...json.RawMessage) (string, error) {
	for _, value := range values {
		ref, _, err := decodeRef(value)
		if err != nil {
			return "", err
		}
		if ref != "" {
			return ref, nil
		}
	}
	return "", nil
}

type wireRef struct {
	ID       string `json:"id"`
	LegacyID string `json:"_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// decodeRef reads a string or object reference; it also returns a display name
// when the object carries one.
func decodeRef(raw json.RawMessage) (string, string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", "", nil
	}

	switch trimmed[0] {
	case '"':
		var ref string
		if err := json.Unmarshal(trimmed, &ref); err != nil {
			return "", "", apperr.MalformedResponse("Reference is not a string")
		}
		return ref, "", nil
	case '{':
		var object wireRef
		if err := json.Unmarshal(trimmed, &object); err != nil {
			return "", "", apperr.MalformedResponse("Reference object has an unexpected shape")
		}
		return firstNonEmpty(object.ID, object.LegacyID), firstNonEmpty(object.Username, object.Name), nil
	default:
		return "", "", apperr.MalformedResponse("Reference must be a string or an object")
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// # Validation

// newRecordValidator reports field names by their JSON tags.
func newRecordValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return validate
}

func malformedFromValidation(id string, err error) *apperr.AppError {
	var details []apperr.FieldError
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		for _, fieldError := range fieldErrors {
			details = append(details, apperr.FieldError{
				Field:   fieldError.Field(),
				Message: "failed " + fieldError.Tag(),
			})
		}
	}

	subject := "Comment"
	if id != "" {
		subject = "Comment " + id
	}
	return apperr.MalformedResponse(subject+" is missing required fields", details...)
}
