//go:build unit

package assets

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailbatch/internal/email"
)

type s3Mock struct {
	objects map[string]string
	calls   []string
}

func (m *s3Mock) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	ref := *in.Bucket + "/" + *in.Key
	m.calls = append(m.calls, ref)

	body, ok := m.objects[ref]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestLoader_Template(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "template.html"), []byte("<h1>Hi</h1>"), 0o644))

	sut := NewLoader(dir, nil)

	html, err := sut.Template(context.TODO(), "template.html")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hi</h1>", html)

	_, err = sut.Template(context.TODO(), "missing.html")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_InlineImages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), []byte("logo"), 0o644))

	store := &s3Mock{objects: map[string]string{"brand/banners/spring.jpg": "banner"}}
	sut := NewLoader(dir, store)

	images, err := sut.InlineImages(context.TODO(), map[string]string{
		"logo-img":   "logo.png",
		"banner-img": "s3://brand/banners/spring.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, []email.InlineImage{
		{ContentID: "banner-img", Name: "spring.jpg", Data: []byte("banner")},
		{ContentID: "logo-img", Name: "logo.png", Data: []byte("logo")},
	}, images)
	assert.Equal(t, []string{"brand/banners/spring.jpg"}, store.calls)
}

func TestLoader_InlineImages_WhenOneIsMissing(t *testing.T) {
	sut := NewLoader(t.TempDir(), &s3Mock{})

	_, err := sut.InlineImages(context.TODO(), map[string]string{"logo-img": "s3://brand/logo.png"})
	assert.EqualError(t, err, "image logo-img: failed to download s3://brand/logo.png: NoSuchKey")
}

func TestLoader_S3References(t *testing.T) {
	_, err := NewLoader("", nil).Load(context.TODO(), "s3://brand/logo.png")
	assert.EqualError(t, err, "s3 assets are not configured: s3://brand/logo.png")

	_, err = NewLoader("", &s3Mock{}).Load(context.TODO(), "s3://brand")
	assert.EqualError(t, err, "invalid s3 reference s3://brand")

	_, err = NewLoader("", nil).Load(context.TODO(), " ")
	assert.EqualError(t, err, "empty asset reference")
}
