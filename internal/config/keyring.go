/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const keyringService = "Geomarks"

func keyringAccount(user string) string {
	if user == "" {
		return "postgres"
	}
	return "postgres:" + user
}

// SecretStore abstracts the OS keychain so tests can stub it.
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
	Delete(service, account string) error
}

var secretStore SecretStore = osKeyring{}

// osKeyring implements SecretStore using github.com/zalando/go-keyring.
// A missing entry is reported as an empty secret, not an error.
type osKeyring struct{}

func (osKeyring) Get(service, account string) (string, error) {
	v, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (osKeyring) Set(service, account, value string) error {
	return keyring.Set(service, account, value)
}

func (osKeyring) Delete(service, account string) error {
	err := keyring.Delete(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// ForgetPassword removes the stored Postgres password for user.
func ForgetPassword(user string) error {
	return secretStore.Delete(keyringService, keyringAccount(user))
}
