/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package storage implements the on-device marker store.
// It owns the embedded SQLite database (pure-Go modernc driver): schema
// initialization, the marker/image CRUD contract, the atomic cascading delete
// and a small maintenance surface (integrity check, stats, online backup).
//
// Foreign-key enforcement in SQLite is a per-connection setting that defaults
// to off. The DSN built by Open asks the driver to switch it on for every
// connection it creates, and Initialize refuses to continue if it is not on.
package storage
