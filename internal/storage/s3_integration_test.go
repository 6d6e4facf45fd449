//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/studybuddy-ai/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Client_SaveAndPresign(t *testing.T) {
	ctx := context.Background()
	mc := testutil.NewMinIOContainer(ctx, t)
	defer mc.Terminate(ctx)

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        mc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     mc.AccessKey,
		SecretAccessKey: mc.SecretKey,
		Bucket:          "studybuddy-materials",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))
	// idempotent
	require.NoError(t, client.EnsureBucket(ctx))

	location, err := client.Save(ctx, "abc.txt", []byte("study notes"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "s3://studybuddy-materials/abc.txt", location)

	url, err := client.GenerateDownloadURL(ctx, "abc.txt")
	require.NoError(t, err)
	assert.Contains(t, url, "abc.txt")

	require.NoError(t, client.DeleteObject(ctx, "abc.txt"))
}
