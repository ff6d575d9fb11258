package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViewerFrom_DefaultsToAnonymous(t *testing.T) {
	v := ViewerFrom(context.Background())
	assert.NotNil(t, v)
	assert.False(t, v.Authenticated())
}

func TestWithViewer(t *testing.T) {
	user := testUser()
	ctx := WithViewer(context.Background(), &Viewer{User: user, RemoteAddr: "10.0.0.1"})

	v := ViewerFrom(ctx)
	assert.True(t, v.Authenticated())
	assert.Same(t, user, v.User)
	assert.Equal(t, "10.0.0.1", v.RemoteAddr)

	var nilViewer *Viewer
	assert.False(t, nilViewer.Authenticated())
}
