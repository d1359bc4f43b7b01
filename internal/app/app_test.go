package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/groundbot/groundbot/internal/config"
	"github.com/groundbot/groundbot/internal/testutil"
)

func TestCloseWithNilComponents(t *testing.T) {
	a := &App{Logger: testutil.DiscardLogger()}
	assert.NoError(t, a.Close())
}

func TestProvideOtelShutdownNeverNil(t *testing.T) {
	cleanup := provideOtelShutdown(context.Background(), &config.Config{}, testutil.DiscardLogger())
	assert.NotNil(t, cleanup)
	assert.NotPanics(t, cleanup)
}
