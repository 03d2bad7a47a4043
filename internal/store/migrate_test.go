// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package store

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenspark/kitchenspark/pkg/errutil"
)

type fakeRunner struct {
	upErr, downErr, stepsErr, forceErr error
	version                            uint
	dirty                              bool
	versionErr                         error
	closeSourceErr, closeDBErr         error

	steps  []int
	forced []int
}

func (f *fakeRunner) Up() error   { return f.upErr }
func (f *fakeRunner) Down() error { return f.downErr }
func (f *fakeRunner) Steps(n int) error {
	f.steps = append(f.steps, n)
	return f.stepsErr
}
func (f *fakeRunner) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeRunner) Force(v int) error {
	f.forced = append(f.forced, v)
	return f.forceErr
}
func (f *fakeRunner) Close() (error, error) { return f.closeSourceErr, f.closeDBErr }

func TestNewMigrator_UnknownScheme(t *testing.T) {
	_, err := NewMigrator("invalid://url")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestDriverURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@db:5432/app", "pgx5://u:p@db:5432/app"},
		{"postgresql://db/app?sslmode=disable", "pgx5://db/app?sslmode=disable"},
		{"pgx5://db/app", "pgx5://db/app"},
		{"mysql://db/app", "mysql://db/app"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, driverURL(tt.in))
		})
	}
}

func TestMigrator_Directions(t *testing.T) {
	boom := errors.New("database locked")
	tests := []struct {
		name     string
		runner   *fakeRunner
		call     func(*Migrator) error
		wantCode string
	}{
		{name: "up applies", runner: &fakeRunner{}, call: (*Migrator).Up},
		{name: "up without changes", runner: &fakeRunner{upErr: migrate.ErrNoChange}, call: (*Migrator).Up},
		{name: "up fails", runner: &fakeRunner{upErr: boom}, call: (*Migrator).Up, wantCode: "MIGRATION_UP_FAILED"},
		{name: "down applies", runner: &fakeRunner{}, call: (*Migrator).Down},
		{name: "down without changes", runner: &fakeRunner{downErr: migrate.ErrNoChange}, call: (*Migrator).Down},
		{name: "down fails", runner: &fakeRunner{downErr: boom}, call: (*Migrator).Down, wantCode: "MIGRATION_DOWN_FAILED"},
		{
			name:     "steps fail",
			runner:   &fakeRunner{stepsErr: boom},
			call:     func(m *Migrator) error { return m.Steps(-1) },
			wantCode: "MIGRATION_STEPS_FAILED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(&Migrator{runner: tt.runner})
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestMigrator_StepsZeroIsNoop(t *testing.T) {
	runner := &fakeRunner{}
	require.NoError(t, (&Migrator{runner: runner}).Steps(0))
	assert.Empty(t, runner.steps)
}

func TestMigrator_Version(t *testing.T) {
	t.Run("fresh database", func(t *testing.T) {
		m := &Migrator{runner: &fakeRunner{versionErr: migrate.ErrNilVersion}}
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Zero(t, version)
		assert.False(t, dirty)
	})

	t.Run("dirty database", func(t *testing.T) {
		m := &Migrator{runner: &fakeRunner{version: 2, dirty: true}}
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(2), version)
		assert.True(t, dirty)
	})

	t.Run("failure", func(t *testing.T) {
		m := &Migrator{runner: &fakeRunner{versionErr: errors.New("no connection")}}
		_, _, err := m.Version()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrator_Force(t *testing.T) {
	runner := &fakeRunner{}
	m := &Migrator{runner: runner}

	err := m.Force(-1)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
	assert.Empty(t, runner.forced)

	require.NoError(t, m.Force(1))
	assert.Equal(t, []int{1}, runner.forced)

	runner.forceErr = errors.New("locked")
	errutil.AssertErrorCode(t, m.Force(2), "MIGRATION_FORCE_FAILED")
}

func TestMigrator_Status(t *testing.T) {
	t.Run("fresh database has everything pending", func(t *testing.T) {
		m := &Migrator{runner: &fakeRunner{versionErr: migrate.ErrNilVersion}}
		status, err := m.Status()
		require.NoError(t, err)
		assert.Zero(t, status.Version)
		assert.Empty(t, status.Name)
		assert.Equal(t, []uint{1, 2}, status.Pending)
	})

	t.Run("partially migrated", func(t *testing.T) {
		m := &Migrator{runner: &fakeRunner{version: 1}}
		status, err := m.Status()
		require.NoError(t, err)
		assert.Equal(t, "000001_create_accounts", status.Name)
		assert.Equal(t, []uint{2}, status.Pending)
	})

	t.Run("version failure", func(t *testing.T) {
		m := &Migrator{runner: &fakeRunner{versionErr: errors.New("no connection")}}
		_, err := m.Status()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrator_Close(t *testing.T) {
	tests := []struct {
		name          string
		runner        *fakeRunner
		wantComponent string
	}{
		{name: "clean", runner: &fakeRunner{}},
		{name: "source", runner: &fakeRunner{closeSourceErr: errors.New("src")}, wantComponent: "source"},
		{name: "database", runner: &fakeRunner{closeDBErr: errors.New("db")}, wantComponent: "database"},
		{
			name:          "both",
			runner:        &fakeRunner{closeSourceErr: errors.New("src"), closeDBErr: errors.New("db")},
			wantComponent: "both",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Migrator{runner: tt.runner}).Close()
			if tt.wantComponent == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
			errutil.AssertErrorContext(t, err, "component", tt.wantComponent)
		})
	}
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(2)
	require.NoError(t, err)
	assert.Equal(t, "000002_create_account_activities", name)

	name, err = MigrationName(99)
	require.NoError(t, err)
	assert.Empty(t, name)
}
