package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptledger/internal/core"
)

func TestMirrorAppendAndIndex(t *testing.T) {
	ctx := context.Background()
	m := New()

	ref, err := m.AppendReport(ctx, core.PublishedReport{ID: 4})
	require.NoError(t, err)
	assert.Equal(t, "mem:1", ref)
	_, err = m.AppendReport(ctx, core.PublishedReport{ID: 9})
	require.NoError(t, err)

	ids, err := m.MirroredReportIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{4: {}, 9: {}}, ids)
	assert.Len(t, m.Reports(), 2)

	_, err = m.AppendReport(ctx, core.PublishedReport{})
	assert.ErrorIs(t, err, core.ErrValidation)
}
