// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"errors"
	"testing"

	"github.com/ManuGH/pdfgray/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletion_StartsOnFirstPage(t *testing.T) {
	fb := newFakeBackend()
	c := newTestController(t, fb)

	snap := complete(t, c, fb, 3)

	assert.Equal(t, 3, snap.Session.PageCount)
	assert.Equal(t, 1, snap.View.CurrentPage)
	assert.False(t, snap.Display.PrevEnabled)
	assert.True(t, snap.Display.NextEnabled)
	assert.Equal(t, "1 / 3", snap.Display.PageLabel)
	assert.True(t, snap.Display.PreviewVisible)
	assert.False(t, snap.Display.ProgressVisible)
	assert.True(t, snap.Display.DownloadEnabled)
	assert.NotEmpty(t, snap.Display.OriginalAsset)
	assert.NotEmpty(t, snap.Display.ConvertedAsset)

	calls := fb.previews()
	require.Len(t, calls, 2)
	assert.ElementsMatch(t, []previewCall{
		{taskID: "task-1", page: 1, kind: backend.PreviewOriginal},
		{taskID: "task-1", page: 1, kind: backend.PreviewConverted},
	}, calls)
}

func TestGoTo_Bounds(t *testing.T) {
	fb := newFakeBackend()
	c := newTestController(t, fb)
	complete(t, c, fb, 5)

	assert.False(t, c.GoTo(0))
	assert.False(t, c.GoTo(6))
	assert.False(t, c.GoTo(-3))
	assert.Equal(t, 1, c.Snapshot().View.CurrentPage)
	assert.Len(t, fb.previews(), 2, "rejected navigation must not fetch")

	require.True(t, c.GoTo(5))
	snap := await(t, c, previewsSettled)
	assert.Equal(t, 5, snap.View.CurrentPage)
	assert.True(t, snap.Display.PrevEnabled)
	assert.False(t, snap.Display.NextEnabled)
	assert.False(t, c.Next(), "next at the last page is a no-op")
	assert.Equal(t, 5, c.Snapshot().View.CurrentPage)

	require.True(t, c.Prev())
	snap = await(t, c, previewsSettled)
	assert.Equal(t, 4, snap.View.CurrentPage)
	assert.True(t, snap.Display.PrevEnabled)
	assert.True(t, snap.Display.NextEnabled)
}

func TestGoTo_NoopBeforeCompletion(t *testing.T) {
	fb := newFakeBackend()
	c := newTestController(t, fb)
	require.NoError(t, c.Select(pdfFile("a.pdf", 10)))

	assert.False(t, c.GoTo(1))
	assert.False(t, c.Next())
	assert.False(t, c.ZoomIn())
	assert.Empty(t, fb.previews())
}

func TestGoTo_ReleasesPreviousHandles(t *testing.T) {
	fb := newFakeBackend()
	c := newTestController(t, fb)
	first := complete(t, c, fb, 3)
	store := c.Assets()
	require.Len(t, store.Live(), 2)

	require.True(t, c.GoTo(2))
	second := await(t, c, previewsSettled)

	_, ok := store.Get(first.Display.OriginalAsset)
	assert.False(t, ok, "page 1 original handle must be released")
	_, ok = store.Get(first.Display.ConvertedAsset)
	assert.False(t, ok, "page 1 converted handle must be released")
	assert.ElementsMatch(t, []string{second.Display.OriginalAsset, second.Display.ConvertedAsset}, store.Live())

	a, ok := store.Get(second.Display.ConvertedAsset)
	require.True(t, ok)
	assert.Equal(t, 2, a.Page)
	assert.Equal(t, backend.PreviewConverted, a.Kind)
}

func TestPreview_FailureIsIndependent(t *testing.T) {
	fb := newFakeBackend()
	fb.previewErr[backend.PreviewConverted] = errors.New("preview generation failed")
	c := newTestController(t, fb)

	snap := complete(t, c, fb, 2)
	assert.NotEmpty(t, snap.Display.OriginalAsset)
	assert.Empty(t, snap.Display.ConvertedAsset)
	assert.Equal(t, StatusCompleted, snap.Session.Status)
	assert.False(t, snap.Display.ErrorVisible, "preview failures are only logged")

	// navigation still works
	require.True(t, c.Next())
	snap = await(t, c, previewsSettled)
	assert.Equal(t, 2, snap.View.CurrentPage)
	assert.NotEmpty(t, snap.Display.OriginalAsset)
}

func TestZoom(t *testing.T) {
	fb := newFakeBackend()
	c := newTestController(t, fb)
	snap := complete(t, c, fb, 1)
	assert.Equal(t, DefaultZoom, snap.View.ZoomPercent)
	assert.Equal(t, "100%", snap.Display.ZoomLabel)

	for i := 0; i < 4; i++ {
		require.True(t, c.ZoomIn())
	}
	assert.Equal(t, MaxZoom, c.Snapshot().View.ZoomPercent)
	for i := 0; i < 3; i++ {
		assert.False(t, c.ZoomIn(), "zoom in at the upper bound is a no-op")
	}
	snap = c.Snapshot()
	assert.Equal(t, 200, snap.View.ZoomPercent)
	assert.Equal(t, 2.0, snap.Display.Scale)

	for i := 0; i < 6; i++ {
		require.True(t, c.ZoomOut())
	}
	for i := 0; i < 3; i++ {
		assert.False(t, c.ZoomOut(), "zoom out at the lower bound is a no-op")
	}
	snap = c.Snapshot()
	assert.Equal(t, MinZoom, snap.View.ZoomPercent)
	assert.Equal(t, 0.5, snap.Display.Scale)
	assert.Equal(t, "50%", snap.Display.ZoomLabel)

	assert.False(t, c.Zoom(-10), "below the lower bound")
	assert.False(t, c.Zoom(0))
	assert.True(t, c.Zoom(150))
	assert.Equal(t, 200, c.Snapshot().View.ZoomPercent)
}

func TestZoom_KeptAcrossNavigation(t *testing.T) {
	fb := newFakeBackend()
	c := newTestController(t, fb)
	complete(t, c, fb, 2)

	require.True(t, c.ZoomIn())
	require.True(t, c.Next())
	snap := await(t, c, previewsSettled)
	assert.Equal(t, 125, snap.View.ZoomPercent)
	assert.Equal(t, 1.25, snap.Display.Scale)
}
