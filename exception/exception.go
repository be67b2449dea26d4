/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package exception

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// ErrClass marks errors raised through this package.
const ErrClass = "custom-exception"

// Machine-readable error codes.
const (
	CodeBadRequest     = "E_BAD_REQUEST"
	CodeUnauthorized   = "E_UNAUTHORIZED"
	CodeForbidden      = "E_FORBIDDEN"
	CodeNotFound       = "E_NOT_FOUND"
	CodeConflict       = "E_CONFLICT"
	CodeInternalServer = "E_INTERNAL_SERVER_ERROR"
)

type statusInfo struct {
	code    string
	message string
}

var responseMap = map[int]statusInfo{
	http.StatusBadRequest:          {CodeBadRequest, "Bad request"},
	http.StatusUnauthorized:        {CodeUnauthorized, "Missing or invalid authentication token"},
	http.StatusForbidden:           {CodeForbidden, "You are not able to access this resource"},
	http.StatusNotFound:            {CodeNotFound, "The requested resource was not found"},
	http.StatusConflict:            {CodeConflict, "Conflict"},
	http.StatusInternalServerError: {CodeInternalServer, "An internal error has occurred"},
}

// HTTPException is an error with a fixed HTTP status, code and message.
// Data carries request specific detail and is rendered as-is.
type HTTPException struct {
	StatusCode int         `json:"statusCode"`
	Code       string      `json:"error"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	ErrClass   string      `json:"errClass"`
	cause      error
}

func (e *HTTPException) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the error this exception was built from, if any.
func (e *HTTPException) Unwrap() error { return e.cause }

// Is reports whether target is an HTTPException with the same status.
func (e *HTTPException) Is(target error) bool {
	t, ok := target.(*HTTPException)
	return ok && t.StatusCode == e.StatusCode
}

// Response returns the body sent to clients.
func (e *HTTPException) Response() ResponseError {
	return GlobalResponseError(e.StatusCode, e.Message, e.Code, e.Data)
}

// WithCause attaches the underlying error without changing the response.
func (e *HTTPException) WithCause(err error) *HTTPException {
	e.cause = err
	return e
}

func newException(status int, data interface{}) *HTTPException {
	info := responseMap[status]
	return &HTTPException{
		StatusCode: status,
		Code:       info.code,
		Message:    info.message,
		Data:       data,
		ErrClass:   ErrClass,
	}
}

func BadRequest(data interface{}) *HTTPException {
	return newException(http.StatusBadRequest, data)
}

func Unauthorized(data interface{}) *HTTPException {
	return newException(http.StatusUnauthorized, data)
}

func Forbidden(data interface{}) *HTTPException {
	return newException(http.StatusForbidden, data)
}

func NotFound(data interface{}) *HTTPException {
	return newException(http.StatusNotFound, data)
}

func Conflict(data interface{}) *HTTPException {
	return newException(http.StatusConflict, data)
}

func Internal(data interface{}) *HTTPException {
	return newException(http.StatusInternalServerError, data)
}

// Sentinels usable with errors.Is.
var (
	ErrBadRequest   = &HTTPException{StatusCode: http.StatusBadRequest}
	ErrUnauthorized = &HTTPException{StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &HTTPException{StatusCode: http.StatusForbidden}
	ErrNotFound     = &HTTPException{StatusCode: http.StatusNotFound}
	ErrConflict     = &HTTPException{StatusCode: http.StatusConflict}
	ErrInternal     = &HTTPException{StatusCode: http.StatusInternalServerError}
)

// ResponseError is the JSON body of an error response.
type ResponseError struct {
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Data    interface{} `json:"data,omitempty"`
}

// GlobalResponseError builds the response body for status. The default
// message of the status is used when message is empty, and the code of a
// known status always wins over code.
func GlobalResponseError(status int, message, code string, data interface{}) ResponseError {
	info, known := responseMap[status]
	if !known {
		info = responseMap[http.StatusInternalServerError]
	}
	if message == "" {
		message = info.message
	}
	if info.code != "" {
		code = info.code
	}
	return ResponseError{Message: message, Code: code, Data: data}
}

// From returns the HTTPException carried by err, or wraps err in a 500.
func From(err error) *HTTPException {
	if err == nil {
		return nil
	}
	var e *HTTPException
	if errors.As(err, &e) {
		return e
	}
	return Internal(nil).WithCause(err)
}

// Status returns the HTTP status for err.
func Status(err error) int {
	if e := From(err); e != nil {
		return e.StatusCode
	}
	return http.StatusOK
}

// Is reports whether err carries an HTTPException with the given status.
func Is(err error, status int) bool {
	var e *HTTPException
	return errors.As(err, &e) && e.StatusCode == status
}
