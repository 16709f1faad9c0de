package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactKey(t *testing.T) {
	assert.Equal(t, "feed_example_.yml", PublicKey(FeedExample, CompressionNone))
	assert.Equal(t, "new_feed_example_.yml", TmpKey(FeedExample, CompressionNone))
	assert.Equal(t, "feed_example2_.yml.zip", PublicKey(FeedExample2, CompressionZip))
	assert.Equal(t, "new_feed_example2_.yml.gz", TmpKey(FeedExample2, CompressionGzip))
}

func TestArtifactKey_TmpAndPublicNeverCollide(t *testing.T) {
	seen := make(map[string]string)
	for _, name := range AllFeedNames() {
		for _, c := range []Compression{CompressionNone, CompressionZip, CompressionGzip} {
			for _, tmp := range []bool{false, true} {
				key := ArtifactKey(name, c, tmp)
				owner := string(name) + "/" + c.String()
				if tmp {
					owner += "/tmp"
				}
				prev, dup := seen[key]
				require.False(t, dup, "key %s produced by %s and %s", key, prev, owner)
				seen[key] = owner
			}
		}
	}
	assert.Len(t, seen, len(AllFeedNames())*6)
}

func TestParseFeedName(t *testing.T) {
	name, err := ParseFeedName("example2")
	require.NoError(t, err)
	assert.Equal(t, FeedExample2, name)

	_, err = ParseFeedName("missing")
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("gzip")
	require.NoError(t, err)
	assert.Equal(t, CompressionGzip, c)

	c, err = ParseCompression("zip")
	require.NoError(t, err)
	assert.Equal(t, CompressionZip, c)

	_, err = ParseCompression("lz4")
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "feed.yml", FileName(CompressionNone))
	assert.Equal(t, "feed.yml.zip", FileName(CompressionZip))
	assert.Equal(t, "feed.yml.gz", FileName(CompressionGzip))
}

func TestContentTypeForKey(t *testing.T) {
	assert.Equal(t, "application/xml", ContentTypeForKey(PublicKey(FeedExample, CompressionNone)))
	assert.Equal(t, "application/zip", ContentTypeForKey(TmpKey(FeedExample, CompressionZip)))
	assert.Equal(t, "application/gzip", ContentTypeForKey(PublicKey(FeedExample2, CompressionGzip)))
}
