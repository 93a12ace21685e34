// Package assets loads the HTML body and the inline images of a batch email.
// References are either paths under the base directory or s3://bucket/key.
package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"mailbatch/internal/email"
)

const s3Scheme = "s3://"

type s3Interface interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Config struct {
	BasePath string
	S3       bool
}

type Loader struct {
	basePath string
	s3       s3Interface
}

// NewLoader builds a loader; s3Client may be nil when no s3:// references are used.
func NewLoader(basePath string, s3Client s3Interface) *Loader {
	return &Loader{basePath: basePath, s3: s3Client}
}

func NewLoaderFromConfig(basePath string, cfg aws.Config) *Loader {
	return NewLoader(basePath, s3.NewFromConfig(cfg))
}

func (l *Loader) Load(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty asset reference")
	}

	if strings.HasPrefix(ref, s3Scheme) {
		return l.loadFromS3(ctx, ref)
	}

	data, err := os.ReadFile(l.resolve(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to read asset %s: %w", ref, err)
	}
	return data, nil
}

func (l *Loader) Template(ctx context.Context, ref string) (string, error) {
	data, err := l.Load(ctx, ref)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// InlineImages resolves every image setting. The setting key becomes the
// Content-ID, so the template references it as cid:<key>.
func (l *Loader) InlineImages(ctx context.Context, images map[string]string) ([]email.InlineImage, error) {
	keys := make([]string, 0, len(images))
	for key := range images {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]email.InlineImage, 0, len(keys))
	for _, key := range keys {
		data, err := l.Load(ctx, images[key])
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", key, err)
		}
		out = append(out, email.InlineImage{
			ContentID: key,
			Name:      path.Base(images[key]),
			Data:      data,
		})
	}
	return out, nil
}

func (l *Loader) resolve(ref string) string {
	if filepath.IsAbs(ref) || l.basePath == "" {
		return ref
	}
	return filepath.Join(l.basePath, ref)
}

func (l *Loader) loadFromS3(ctx context.Context, ref string) ([]byte, error) {
	if l.s3 == nil {
		return nil, fmt.Errorf("s3 assets are not configured: %s", ref)
	}

	bucket, key, ok := strings.Cut(strings.TrimPrefix(ref, s3Scheme), "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("invalid s3 reference %s", ref)
	}

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", ref, err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}
