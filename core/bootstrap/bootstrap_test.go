package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/pairbot/core/config"
)

type fakeStorage struct {
	closed int
}

func (s *fakeStorage) Close() error {
	s.closed++
	return nil
}

func noLogger(*coreconfig.Config) error { return nil }

func TestRunSeedsInOrder(t *testing.T) {
	st := &fakeStorage{}
	var order []string
	seed := func(name string) Seeder {
		return SeederFunc(func(_ context.Context, s Storage) error {
			assert.Same(t, st, s)
			order = append(order, name)
			return nil
		})
	}

	res, err := Run(context.Background(), Options{
		Config:      &coreconfig.Config{},
		LoggerInit:  noLogger,
		OpenStorage: func(context.Context) (Storage, error) { return st, nil },
		Modules:     Modules{Seeders: []Seeder{seed("reset"), nil, seed("warmup")}},
	})
	require.NoError(t, err)
	assert.Same(t, st, res.Storage)
	assert.Equal(t, []string{"reset", "warmup"}, order)
	assert.Zero(t, st.closed)
}

func TestRunClosesStorageOnSeedFailure(t *testing.T) {
	st := &fakeStorage{}
	boom := errors.New("boom")

	_, err := Run(context.Background(), Options{
		Config:      &coreconfig.Config{},
		LoggerInit:  noLogger,
		OpenStorage: func(context.Context) (Storage, error) { return st, nil },
		Modules: Modules{Seeders: []Seeder{SeederFunc(func(context.Context, Storage) error {
			return boom
		})}},
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, st.closed)
}

func TestRunFailures(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	assert.Error(t, err)

	_, err = Run(context.Background(), Options{Config: &coreconfig.Config{}, LoggerInit: noLogger})
	assert.Error(t, err)

	loggerErr := errors.New("logger")
	_, err = Run(context.Background(), Options{
		Config:      &coreconfig.Config{},
		LoggerInit:  func(*coreconfig.Config) error { return loggerErr },
		OpenStorage: func(context.Context) (Storage, error) { return &fakeStorage{}, nil },
	})
	assert.ErrorIs(t, err, loggerErr)

	storeErr := errors.New("dial")
	_, err = Run(context.Background(), Options{
		Config:      &coreconfig.Config{},
		LoggerInit:  noLogger,
		OpenStorage: func(context.Context) (Storage, error) { return nil, storeErr },
	})
	assert.ErrorIs(t, err, storeErr)
}
