/*
 * Copyright 2024, 2025 Hewlett Packard Enterprise Development LP
 * Other additional copyright holders may be indicated within.
 *
 * The entirety of this work is licensed under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 *
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

package ec

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// ControllerError is an error with the HTTP status it is reported as.
type ControllerError struct {
	StatusCode int
	Cause      string
	Err        error
}

func NewControllerError(sc int) *ControllerError {
	return &ControllerError{StatusCode: sc}
}

func NewErrBadRequest() *ControllerError { return NewControllerError(http.StatusBadRequest) }
func NewErrNotFound() *ControllerError   { return NewControllerError(http.StatusNotFound) }
func NewErrInternalServerError() *ControllerError {
	return NewControllerError(http.StatusInternalServerError)
}
func NewErrBadGateway() *ControllerError { return NewControllerError(http.StatusBadGateway) }
func NewErrServiceUnavailable() *ControllerError {
	return NewControllerError(http.StatusServiceUnavailable)
}

func (e *ControllerError) WithError(err error) *ControllerError {
	e.Err = err
	return e
}

func (e *ControllerError) WithCause(cause string, a ...interface{}) *ControllerError {
	e.Cause = fmt.Sprintf(cause, a...)
	return e
}

func (e *ControllerError) Error() string {
	s := fmt.Sprintf("Error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Cause != "" {
		s += ": " + e.Cause
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ControllerError) Unwrap() error { return e.Err }

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status int
	Cause  string
	Error  string `json:",omitempty"`
	Model  string `json:",omitempty"`
}

// EncodeResponse writes model as JSON, or an ErrorResponse carrying model
// when err is not nil.
func EncodeResponse(model interface{}, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")

	if err == nil {
		rsp, err := json.Marshal(model)
		if err != nil {
			log.WithError(err).Error("Failed to encode model")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write(rsp)
		return
	}

	e := new(ControllerError)
	if !errors.As(err, &e) {
		e = NewErrInternalServerError().WithError(err)
	}

	rsp := ErrorResponse{Status: e.StatusCode, Cause: e.Cause}
	if e.Err != nil {
		rsp.Error = e.Err.Error()
	}

	if data, merr := json.Marshal(model); merr == nil {
		rsp.Model = string(data)
	}

	data, merr := json.Marshal(&rsp)
	if merr != nil {
		log.WithError(merr).Error("Failed to encode error response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(e.StatusCode)
	w.Write(data)
}
