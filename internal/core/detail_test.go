package core

import (
	"context"
	"errors"
	"testing"

	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetailLoader_Select(t *testing.T) {
	src := &fakeSource{details: map[string]*models.ChangeDetail{
		"c100": {Change: change("c100", 100), CommitMessage: "Fix boot loop", Topic: "boot"},
	}}
	d := NewDetailLoader(src, nil)

	detail, err := d.Select(context.Background(), change("c100", 100))
	require.NoError(t, err)
	assert.Equal(t, "Fix boot loop", detail.CommitMessage)
	assert.Equal(t, "boot", detail.Topic)
	assert.Same(t, detail, d.Selected())
}

func TestDetailLoader_FailureKeepsSelection(t *testing.T) {
	src := &fakeSource{details: map[string]*models.ChangeDetail{
		"c100": {Change: change("c100", 100), CommitMessage: "Fix boot loop"},
	}}
	d := NewDetailLoader(src, nil)

	prev, err := d.Select(context.Background(), change("c100", 100))
	require.NoError(t, err)

	_, err = d.Select(context.Background(), change("missing", 90))
	require.Error(t, err)
	var de *DetailError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "missing", de.ChangeID)
	assert.Same(t, prev, d.Selected())

	src.detailErr = errConnReset
	_, err = d.Select(context.Background(), change("c100", 100))
	assert.True(t, errors.Is(err, errConnReset))
	assert.Same(t, prev, d.Selected())
}

func TestDetailLoader_BuildEntry(t *testing.T) {
	d := NewDetailLoader(&fakeSource{}, nil)

	entry := models.NewBuildChange(tsBuild("b1", 1))
	detail, err := d.Select(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, entry.Subject, detail.CommitMessage)
	assert.True(t, detail.Change.IsBuild())
}
