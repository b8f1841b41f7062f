package gateway

import (
	"net/http"
	"path"
	"strings"
)

// ResourceClass is the bucket a request is sorted into for caching policy.
type ResourceClass int

const (
	ClassStaticAsset ResourceClass = iota
	ClassWeatherAPI
	ClassImage
	ClassOther
)

func (c ResourceClass) String() string {
	switch c {
	case ClassStaticAsset:
		return "static"
	case ClassWeatherAPI:
		return "weather"
	case ClassImage:
		return "image"
	default:
		return "other"
	}
}

// imageExtensions lists request path suffixes classified as images when the
// request carries no destination header.
var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {}, ".ico": {},
}

// Classifier maps requests to resource classes. Classification is a pure
// function of the request URL and declared destination, computed once per
// request and never revisited.
type Classifier struct {
	staticPaths     map[string]struct{}
	weatherPatterns []string
}

// NewClassifier builds a classifier from the fixed static-path allow-list and
// the weather-provider URL substring patterns.
func NewClassifier(staticPaths, weatherPatterns []string) *Classifier {
	paths := make(map[string]struct{}, len(staticPaths))
	for _, p := range staticPaths {
		paths[p] = struct{}{}
	}
	return &Classifier{staticPaths: paths, weatherPatterns: weatherPatterns}
}

// Classify returns the resource class for the request. Order matters:
// weather patterns win over the static allow-list, which wins over the
// image destination check.
func (c *Classifier) Classify(r *http.Request) ResourceClass {
	target := r.URL.String()
	for _, pattern := range c.weatherPatterns {
		if pattern != "" && strings.Contains(target, pattern) {
			return ClassWeatherAPI
		}
	}
	if _, ok := c.staticPaths[r.URL.Path]; ok {
		return ClassStaticAsset
	}
	if r.Header.Get("Sec-Fetch-Dest") == "image" {
		return ClassImage
	}
	if _, ok := imageExtensions[strings.ToLower(path.Ext(r.URL.Path))]; ok {
		return ClassImage
	}
	return ClassOther
}

// isNavigation reports whether the request is a top-level page navigation,
// which NetworkFirst treats specially (cached start page fallback).
func isNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
