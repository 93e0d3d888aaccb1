package remote

import (
	"context"
	"testing"

	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/omnirom/omnigerrit/internal/remote/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDevice = models.Device{Name: "oneplus9", Version: "14", BuildType: "WEEKLY", Branch: "android-14.0"}

func TestOTAClient_FetchBuildSnapshot(t *testing.T) {
	srv := remotetest.NewServer(t)
	srv.AddBuilds("", "oneplus9",
		models.Build{Filename: "omni-14-20240101_1200-oneplus9-WEEKLY.zip", Size: 3 << 20},
		models.Build{Filename: "omni-14-20240301_0800-oneplus9-WEEKLY.zip"},
		models.Build{Filename: "omni-14-20240201-oneplus9-GAPPS.zip"},
		models.Build{Filename: "omni-13-20240210-oneplus9-WEEKLY.zip"},
	)
	srv.AddBuilds("", "other", models.Build{Filename: "omni-14-20240101-other-WEEKLY.zip"})

	c, err := NewOTAClient(srv.URL, nil)
	require.NoError(t, err)

	builds, err := c.FetchBuildSnapshot(context.Background(), testDevice)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, "omni-14-20240301_0800-oneplus9-WEEKLY.zip", builds[0].Filename)
	assert.Equal(t, "omni-14-20240101_1200-oneplus9-WEEKLY.zip", builds[1].Filename)
}

func TestOTAClient_ProbesTmpRoot(t *testing.T) {
	srv := remotetest.NewServer(t)
	srv.AddBuilds("", "other", models.Build{Filename: "omni-14-20240101-other-WEEKLY.zip"})
	srv.AddBuilds("tmp", "oneplus9", models.Build{Filename: "omni-14-20240101-oneplus9-WEEKLY.zip"})

	c, err := NewOTAClient(srv.URL, nil)
	require.NoError(t, err)

	builds, err := c.FetchBuildSnapshot(context.Background(), testDevice)
	require.NoError(t, err)
	require.Len(t, builds, 1)

	// The resolved root is remembered.
	_, err = c.FetchBuildSnapshot(context.Background(), testDevice)
	require.NoError(t, err)
	last := srv.Requests()[len(srv.Requests())-1]
	assert.Equal(t, "/tmp/ota_info.php", last.Path)
}

func TestOTAClient_NoBuildsAnywhere(t *testing.T) {
	srv := remotetest.NewServer(t)
	srv.AddBuilds("", "other", models.Build{Filename: "omni-14-20240101-other-WEEKLY.zip"})

	c, err := NewOTAClient(srv.URL, nil)
	require.NoError(t, err)

	builds, err := c.FetchBuildSnapshot(context.Background(), testDevice)
	require.NoError(t, err)
	assert.Empty(t, builds)
}

func TestOTAClient_TransientErrorNotCached(t *testing.T) {
	srv := remotetest.NewServer(t)
	srv.AddBuilds("", "oneplus9", models.Build{Filename: "omni-14-20240101-oneplus9-WEEKLY.zip"})
	srv.FailNext("/ota_info.php", 0)

	c, err := NewOTAClient(srv.URL, nil)
	require.NoError(t, err)

	_, err = c.FetchBuildSnapshot(context.Background(), testDevice)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	builds, err := c.FetchBuildSnapshot(context.Background(), testDevice)
	require.NoError(t, err)
	assert.Len(t, builds, 1)
}
