package mocks

import (
	"context"
	"fmt"
	"sort"

	"mailbatch/internal/email"
)

type AssetsMock struct {
	template      string
	templateError error
	missing       map[string]bool
}

type AssetsMockOptions func(*AssetsMock)

func Template(html string) AssetsMockOptions {
	return func(m *AssetsMock) {
		m.template = html
	}
}

func TemplateError(err error) AssetsMockOptions {
	return func(m *AssetsMock) {
		m.templateError = err
	}
}

// MissingAsset makes the given reference fail to load.
func MissingAsset(ref string) AssetsMockOptions {
	return func(m *AssetsMock) {
		m.missing[ref] = true
	}
}

func NewAssetsMock(opts ...AssetsMockOptions) *AssetsMock {
	m := &AssetsMock{template: "<p>hello</p>", missing: map[string]bool{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *AssetsMock) Template(_ context.Context, _ string) (string, error) {
	return m.template, m.templateError
}

func (m *AssetsMock) InlineImages(_ context.Context, images map[string]string) ([]email.InlineImage, error) {
	keys := make([]string, 0, len(images))
	for key := range images {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]email.InlineImage, 0, len(keys))
	for _, key := range keys {
		if m.missing[images[key]] {
			return nil, fmt.Errorf("image %s: asset %s not found", key, images[key])
		}
		out = append(out, email.InlineImage{ContentID: key, Name: images[key], Data: []byte(images[key])})
	}
	return out, nil
}
