package evalerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollaboratorWrapsKindAndCause(t *testing.T) {
	cause := errors.New("throttled")
	err := Collaborator("GetResourceMetrics", "metrics", cause)

	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "GetResourceMetrics during metrics: collaborator unavailable: throttled", err.Error())

	wrapped := fmt.Errorf("snapshot: %w", err)
	assert.Equal(t, ErrCollaboratorUnavailable, KindOf(wrapped))
}

func TestCollaboratorNil(t *testing.T) {
	assert.NoError(t, Collaborator("op", "phase", nil))
}

func TestMalformed(t *testing.T) {
	err := Malformed("Quote", "pricing", "no on-demand term for %s", "db.r6g.large")
	assert.ErrorIs(t, err, ErrMalformedCatalogEntry)
	assert.Contains(t, err.Error(), "db.r6g.large")
}

func TestKindOfUnknown(t *testing.T) {
	assert.Nil(t, KindOf(errors.New("other")))
	assert.Equal(t, ErrNoWorkloadData, KindOf(New("Snapshot", "", ErrNoWorkloadData, nil)))
}
