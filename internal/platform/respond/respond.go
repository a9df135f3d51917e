// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package respond provides HTTP response helpers used by all API handlers.
//
// # Architecture
//
// Every response carries a `status` field ("success", "fail" or "error").
// Clients treat the envelope, not the transport status code, as authoritative,
// so this package is the only place where both are decided together.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/taibuivan/quill/internal/platform/apperr"
	"github.com/taibuivan/quill/internal/platform/constants"
	"github.com/taibuivan/quill/internal/platform/ctxutil"
	"github.com/taibuivan/quill/pkg/pagination"
)

// SuccessEnvelope is the JSON envelope for successful responses.
type SuccessEnvelope struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// ListPayload is the `data` body of paginated list responses.
type ListPayload struct {
	Data       any              `json:"data"`
	Pagination *pagination.Meta `json:"pagination,omitempty"`
}

// ErrorEnvelope is the JSON envelope for error responses.
type ErrorEnvelope struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Code    string              `json:"code"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(writer http.ResponseWriter, statusCode int, payload any) {
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer.WriteHeader(statusCode)
	_ = json.NewEncoder(writer).Encode(payload)
}

// OK writes a 200 OK response with data wrapped in the standard success envelope.
func OK(writer http.ResponseWriter, data any) {
	JSON(writer, http.StatusOK, SuccessEnvelope{Status: constants.StatusSuccess, Data: data})
}

// Created writes a 201 Created response with data wrapped in the standard success envelope.
func Created(writer http.ResponseWriter, data any) {
	JSON(writer, http.StatusCreated, SuccessEnvelope{Status: constants.StatusSuccess, Data: data})
}

// Success writes a 200 OK envelope without a data member.
func Success(writer http.ResponseWriter) {
	JSON(writer, http.StatusOK, SuccessEnvelope{Status: constants.StatusSuccess})
}

// List writes a 200 OK response whose data member wraps the items.
func List(writer http.ResponseWriter, items any) {
	OK(writer, ListPayload{Data: items})
}

// Paginated writes a 200 OK response with items and pagination metadata.
func Paginated(writer http.ResponseWriter, items any, metadata pagination.Meta) {
	OK(writer, ListPayload{Data: items, Pagination: &metadata})
}

// Error converts any Go error into a standardized JSON API error response.
//
// 4xx errors are reported with status "fail", 5xx with status "error".
func Error(writer http.ResponseWriter, request *http.Request, err error) {
	var appError *apperr.AppError
	if !errors.As(err, &appError) {
		// Unexpected internal error: log full details but hide them from the client.
		logger := ctxutil.GetLogger(request.Context())
		logger.ErrorContext(request.Context(), "unhandled_error_swallowed",
			slog.String("error", err.Error()),
			slog.String("request_id", ctxutil.GetRequestID(request.Context())),
		)
		appError = apperr.Internal(err)
	}

	status := constants.StatusFail
	if appError.HTTPStatus >= 500 {
		status = constants.StatusError

		logger := ctxutil.GetLogger(request.Context())
		logger.ErrorContext(request.Context(), "api_server_error",
			slog.String("code", appError.Code),
			slog.String("request_id", ctxutil.GetRequestID(request.Context())),
			slog.Any("cause", appError.Cause),
		)
	}

	JSON(writer, appError.HTTPStatus, ErrorEnvelope{
		Status:  status,
		Message: appError.Message,
		Code:    appError.Code,
		Details: appError.Details,
	})
}
