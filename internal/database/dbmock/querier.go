// Package dbmock holds a testify mock of database.Querier shared by package tests.
package dbmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github-stats-harvester/internal/database"
)

// MockQuerier is a mock of the database.Querier interface.
type MockQuerier struct {
	mock.Mock
}

var _ database.Querier = (*MockQuerier)(nil)

func (m *MockQuerier) CountSnapshotsByRepoID(ctx context.Context, repoID string) (int64, error) {
	args := m.Called(ctx, repoID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) GetRepositoryByFullName(ctx context.Context, fullName string) (database.Repository, error) {
	args := m.Called(ctx, fullName)
	return args.Get(0).(database.Repository), args.Error(1)
}
func (m *MockQuerier) InsertDiscoverySeed(ctx context.Context, fullName string) error {
	args := m.Called(ctx, fullName)
	return args.Error(0)
}
func (m *MockQuerier) InsertDiscoverySeeds(ctx context.Context, fullNames []string) error {
	args := m.Called(ctx, fullNames)
	return args.Error(0)
}
func (m *MockQuerier) InsertSnapshot(ctx context.Context, arg database.InsertSnapshotParams) (database.RepoSnapshot, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(database.RepoSnapshot), args.Error(1)
}
func (m *MockQuerier) ListDiscoverySeeds(ctx context.Context, limit int32) ([]database.DiscoverySeed, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]database.DiscoverySeed), args.Error(1)
}
func (m *MockQuerier) ListSnapshotsByRepoID(ctx context.Context, arg database.ListSnapshotsByRepoIDParams) ([]database.RepoSnapshot, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).([]database.RepoSnapshot), args.Error(1)
}
func (m *MockQuerier) UpsertRepository(ctx context.Context, arg database.UpsertRepositoryParams) (database.Repository, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(database.Repository), args.Error(1)
}
