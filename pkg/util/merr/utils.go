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
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case zeusError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

func IsRetryableErr(err error) bool {
	if err, ok := err.(zeusError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// IsInputError 判断给定错误是否属于调用方输入错误。
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	cause := errors.Cause(err)
	if specificErr, ok := cause.(zeusError); ok {
		return specificErr.errType == InputError
	}
	return false
}

// Combine 将多个错误合并为一个，nil 会被忽略。
// 所有错误均为 nil 时返回 nil。
func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}

	combined := errs[0]
	for _, err := range errs[1:] {
		combined = errors.Wrap(combined, err.Error())
	}
	return combined
}

// wrapFields 为错误附加格式化字段，msg 通过 "->" 级联。
func wrapFields(err error, msg []string, fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		err = errors.Wrapf(err, "%s=%s", fields[i], fields[i+1])
	}
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Codec related

func WrapErrCodecUnsupported(token string, msg ...string) error {
	return wrapFields(ErrCodecUnsupported, msg, "token", token)
}

func WrapErrCodecCreate(err error, token string, msg ...string) error {
	return wrapFields(errors.Wrap(ErrCodecCreate, err.Error()), msg, "token", token)
}

func WrapErrCodecEncode(err error, token string, msg ...string) error {
	return wrapFields(errors.Wrap(ErrCodecEncode, err.Error()), msg, "token", token)
}

func WrapErrCodecFlush(err error, token string, msg ...string) error {
	return wrapFields(errors.Wrap(ErrCodecFlush, err.Error()), msg, "token", token)
}

func WrapErrCodecFinish(err error, token string, msg ...string) error {
	return wrapFields(errors.Wrap(ErrCodecFinish, err.Error()), msg, "token", token)
}

func WrapErrCodecClosed(token string, msg ...string) error {
	return wrapFields(ErrCodecClosed, msg, "token", token)
}

// Transform related

func WrapErrTransformFinished(msg ...string) error {
	return wrapFields(ErrTransformFinished, msg)
}

func WrapErrTransformFailed(err error, msg ...string) error {
	return wrapFields(errors.Wrap(ErrTransformFailed, err.Error()), msg)
}

func WrapErrBodyUpstream(err error, msg ...string) error {
	return wrapFields(errors.Wrap(ErrBodyUpstream, err.Error()), msg)
}

// Parameter related

func WrapErrParameterInvalidMsg(fmtStr string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmtStr, args...)
}

func WrapErrParameterMissing(param string, msg ...string) error {
	return wrapFields(ErrParameterMissing, msg, "param", param)
}

// Pool related

func WrapErrPoolExhausted(msg ...string) error {
	return wrapFields(ErrPoolExhausted, msg)
}

func WrapErrPoolClosed(msg ...string) error {
	return wrapFields(ErrPoolClosed, msg)
}

// Config related

func WrapErrConfigLoad(err error, path string, msg ...string) error {
	return wrapFields(errors.Wrap(ErrConfigLoad, err.Error()), msg, "path", path)
}

func WrapErrConfigInvalidMsg(fmtStr string, args ...any) error {
	return errors.Wrapf(ErrConfigInvalid, fmtStr, args...)
}
