// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package store

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EveryUpHasDown(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		assert.Regexp(t, pattern, entry.Name())
		names[entry.Name()] = true
	}

	for name := range names {
		if stem, ok := strings.CutSuffix(name, ".up.sql"); ok {
			assert.True(t, names[stem+".down.sql"], "%s has no down migration", name)
		}
	}
}

func TestMigrationsFS_UsersSchema(t *testing.T) {
	up, err := migrationsFS.ReadFile("migrations/000001_create_users.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "lower(email)", "email uniqueness must be case-insensitive")

	reset, err := migrationsFS.ReadFile("migrations/000002_password_reset.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(reset), "password_reset_token")
	assert.Contains(t, string(reset), "password_reset_expires")
}
