/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. The concrete error types below match them.
var (
	ErrInitialization = errors.New("store initialization failed")
	ErrConstraint     = errors.New("constraint violation")
	ErrStorage        = errors.New("storage fault")
)

var errEmptyURI = errors.New("uri is empty")

func errNonFinite(field string, v float64) error {
	return fmt.Errorf("%s is not finite: %v", field, v)
}

// InitializationError is fatal for the session: the schema or the connection
// could not be established. Callers must not retry automatically.
type InitializationError struct {
	Op  string
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize %s: %v", e.Op, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

func (e *InitializationError) Is(target error) bool { return target == ErrInitialization }

// ConstraintError reports a request that would break referential or value
// integrity, e.g. attaching an image to a marker that does not exist.
type ConstraintError struct {
	Op  string
	Err error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

func (e *ConstraintError) Is(target error) bool { return target == ErrConstraint }

// StorageError wraps I/O, corruption or driver failures during an otherwise
// valid operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// MissingMarker is the cause carried by a ConstraintError when an image
// names a marker id that is not stored.
func MissingMarker(id int64) error {
	return fmt.Errorf("marker %d does not exist", id)
}
