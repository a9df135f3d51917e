// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/quill/internal/platform/apperr"
)

/*
TestConstructors_StatusMatchesCode keeps every constructor aligned with StatusFor,
which clients use to rebuild errors from the wire.
*/
func TestConstructors_StatusMatchesCode(t *testing.T) {
	errs := []*apperr.AppError{
		apperr.NotFound("Comment"),
		apperr.Unauthorized("bad token"),
		apperr.AuthRequired("log in"),
		apperr.Forbidden("not yours"),
		apperr.Conflict("busy"),
		apperr.AlreadyDeleted("Comment"),
		apperr.ValidationError("invalid"),
		apperr.RateLimited(1),
		apperr.Internal(nil),
		apperr.ServiceUnavailable("maintenance"),
		apperr.Network(nil),
		apperr.MalformedResponse("garbled"),
	}

	for _, appError := range errs {
		t.Run(appError.Code, func(t *testing.T) {
			assert.Equal(t, appError.HTTPStatus, apperr.StatusFor(appError.Code))
		})
	}

	assert.Equal(t, http.StatusInternalServerError, apperr.StatusFor("SOMETHING_NEW"))
}

/*
TestHasCode finds codes through wrapping.
*/
func TestHasCode(t *testing.T) {
	wrapped := fmt.Errorf("delete: %w", apperr.AlreadyDeleted("Comment"))

	assert.True(t, apperr.HasCode(wrapped, apperr.CodeNotFound, apperr.CodeAlreadyDeleted))
	assert.False(t, apperr.HasCode(wrapped, apperr.CodeNotFound))
	assert.False(t, apperr.HasCode(errors.New("plain"), apperr.CodeInternal))
	assert.False(t, apperr.HasCode(nil, apperr.CodeInternal))
	assert.True(t, apperr.IsAppError(wrapped))
}

/*
TestInternal_KeepsCause checks that the cause is reachable but never shown.
*/
func TestInternal_KeepsCause(t *testing.T) {
	cause := errors.New("pool exhausted")
	appError := apperr.Internal(cause)

	assert.ErrorIs(t, appError, cause)
	assert.NotContains(t, appError.Error(), "pool exhausted")
}

/*
TestValidationError_Details carries field errors in order.
*/
func TestValidationError_Details(t *testing.T) {
	err := apperr.ValidationError("Validation failed",
		apperr.FieldError{Field: "content", Message: "This field is required"},
		apperr.FieldError{Field: "parentRef", Message: "Must be a valid UUID"},
	)

	appError := apperr.As(err)
	require.NotNil(t, appError)
	require.Len(t, appError.Details, 2)
	assert.Equal(t, "parentRef", appError.Details[1].Field)
}
