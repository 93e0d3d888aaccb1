package core

import (
	"testing"
	"time"

	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/stretchr/testify/assert"
)

var testDevice = models.Device{Name: "oneplus9", Version: "14", BuildType: "WEEKLY", Branch: "android-14.0"}

func TestBuildQuery(t *testing.T) {
	after := time.Date(2024, 3, 1, 8, 30, 45, 0, time.UTC)

	tests := []struct {
		name   string
		filter models.FilterState
		want   string
	}{
		{
			name:   "defaults",
			filter: models.DefaultFilter(),
			want:   "branch:android-14.0+status:merged",
		},
		{
			name:   "explicit branch and project",
			filter: models.FilterState{Branch: "android-13.0", Project: "android_build", Status: models.StatusOpen},
			want:   "branch:android-13.0+project:android_build+status:open",
		},
		{
			name:   "search text",
			filter: models.FilterState{SearchText: " fix crash ", Status: models.StatusMerged},
			want:   "branch:android-14.0+message:%22fix+crash%22+status:merged",
		},
		{
			name:   "blank search text is ignored",
			filter: models.FilterState{SearchText: "   "},
			want:   "branch:android-14.0+status:merged",
		},
		{
			name:   "after",
			filter: models.DefaultFilter().WithAfter(after),
			want:   "branch:android-14.0+after:%222024-03-01+08%3A30%22+status:merged",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(testDevice, tt.filter))
		})
	}
}

func TestBuildQuery_Deterministic(t *testing.T) {
	f := models.FilterState{Branch: "main", Project: "p", SearchText: "x", Status: models.StatusOpen}
	assert.Equal(t, BuildQuery(testDevice, f), BuildQuery(testDevice, f))
}

func TestBuildQuery_AfterIsUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	f := models.DefaultFilter().WithAfter(time.Date(2024, 3, 1, 9, 0, 0, 0, loc))
	assert.Contains(t, BuildQuery(testDevice, f), "after:%222024-03-01+08%3A00%22")
}

func TestParseAfter(t *testing.T) {
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	got, err := ParseAfter("2024-03-01")
	assert.NoError(t, err)
	assert.True(t, want.Equal(got))

	got, err = ParseAfter("2024-03-01 08:30")
	assert.NoError(t, err)
	assert.True(t, want.Add(8*time.Hour+30*time.Minute).Equal(got))

	got, err = ParseAfter("2024-03-01T09:30:59+01:00")
	assert.NoError(t, err)
	assert.True(t, want.Add(8*time.Hour+30*time.Minute).Equal(got), "converted to UTC and truncated to the minute")
	assert.Equal(t, time.UTC, got.Location())

	_, err = ParseAfter("yesterday")
	assert.ErrorContains(t, err, "invalid date")
}
