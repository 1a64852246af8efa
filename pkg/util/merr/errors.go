// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"github.com/cockroachdb/errors"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Codec related
	ErrCodecUnsupported = newZeusError("codec unsupported", 100, false)
	ErrCodecCreate      = newZeusError("codec create failed", 101, false)
	ErrCodecEncode      = newZeusError("codec encode failed", 102, false)
	ErrCodecFlush       = newZeusError("codec flush failed", 103, false)
	ErrCodecFinish      = newZeusError("codec finish failed", 104, false)
	ErrCodecClosed      = newZeusError("codec already closed", 105, false)

	// Transform related
	ErrTransformFinished = newZeusError("body transform already finished", 200, false)
	ErrTransformFailed   = newZeusError("body transform failed", 201, false)
	ErrBodyUpstream      = newZeusError("upstream body error", 202, false)

	// Parameter related
	ErrParameterInvalid = newZeusError("invalid parameter", 1100, false, WithErrorType(InputError))
	ErrParameterMissing = newZeusError("missing parameter", 1101, false, WithErrorType(InputError))

	// Pool related
	ErrPoolExhausted = newZeusError("compression pool exhausted", 1200, false)
	ErrPoolClosed    = newZeusError("compression pool closed", 1201, false)

	// Config related
	ErrConfigLoad    = newZeusError("load config failed", 1300, false, WithErrorType(InputError))
	ErrConfigInvalid = newZeusError("invalid config", 1301, false, WithErrorType(InputError))

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to zeusError
	errUnexpected = newZeusError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*zeusError)

func WithDetail(detail string) errorOption {
	return func(err *zeusError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *zeusError) {
		err.errType = etype
	}
}

type zeusError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newZeusError(msg string, code int32, retriable bool, options ...errorOption) zeusError {
	err := zeusError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e zeusError) code() int32 {
	return e.errCode
}

func (e zeusError) Error() string {
	return e.msg
}

func (e zeusError) Detail() string {
	return e.detail
}

func (e zeusError) Is(err error) bool {
	cause := errors.Cause(err)
	if target, ok := cause.(zeusError); ok {
		return target.errCode == e.errCode
	}
	return false
}
