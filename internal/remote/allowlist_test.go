package remote

import (
	"context"
	"testing"

	"github.com/omnirom/omnigerrit/internal/remote/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAllowList = `<?xml version="1.0" encoding="UTF-8"?>
<devices>
  <device code="oneplus9">
    <project name="android_device_oneplus_oneplus9"/>
    <project name="android_kernel_oneplus_sm8350"/>
  </device>
  <device code="pixel7">
    <project name="android_device_google_panther"/>
  </device>
</devices>`

func TestAllowListClient_Fetch(t *testing.T) {
	srv := remotetest.NewServer(t)
	srv.SetAllowList(testAllowList)

	c := NewAllowListClient(srv.AllowListURL(), nil)
	allowed, err := c.FetchAllowList(context.Background(), "oneplus9")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{
		"android_device_oneplus_oneplus9": true,
		"android_kernel_oneplus_sm8350":   true,
	}, allowed)
}

func TestAllowListClient_UnknownDevice(t *testing.T) {
	srv := remotetest.NewServer(t)
	srv.SetAllowList(testAllowList)

	c := NewAllowListClient(srv.AllowListURL(), nil)
	allowed, err := c.FetchAllowList(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, allowed)
}

func TestAllowListClient_EmptyURL(t *testing.T) {
	c := NewAllowListClient("", nil)
	allowed, err := c.FetchAllowList(context.Background(), "oneplus9")
	require.NoError(t, err)
	assert.Empty(t, allowed)
}

func TestAllowListClient_Malformed(t *testing.T) {
	srv := remotetest.NewServer(t)
	srv.SetAllowList("<devices><device code=")

	c := NewAllowListClient(srv.AllowListURL(), nil)
	_, err := c.FetchAllowList(context.Background(), "oneplus9")
	require.Error(t, err)
	assert.True(t, IsServerError(err))
}
