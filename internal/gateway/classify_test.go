package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestClassify covers the precedence rules: weather patterns beat the static
// allow-list, which beats the image checks, with everything else falling
// through to ClassOther.
func TestClassify(t *testing.T) {
	c := NewClassifier(
		[]string{"/", "/index.html", "/app.js", "/styles.css"},
		[]string{"wttr.in", "buienradar.nl"},
	)

	tests := []struct {
		name    string
		target  string
		headers map[string]string
		want    ResourceClass
	}{
		{"start page", "/", nil, ClassStaticAsset},
		{"script", "/app.js", nil, ClassStaticAsset},
		{"stylesheet", "/styles.css", nil, ClassStaticAsset},
		{"weather provider", "https://wttr.in/52.37,4.89?format=j1", nil, ClassWeatherAPI},
		{"second provider", "https://data.buienradar.nl/2.0/feed/json", nil, ClassWeatherAPI},
		{"weather beats image extension", "https://wttr.in/radar.png", nil, ClassWeatherAPI},
		{"png extension", "/images/icon.png", nil, ClassImage},
		{"uppercase extension", "/images/BANNER.JPG", nil, ClassImage},
		{"image destination", "/dynamic-thumbnail", map[string]string{"Sec-Fetch-Dest": "image"}, ClassImage},
		{"api call", "/api/session", nil, ClassOther},
		{"unlisted page", "/about", nil, ClassOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := c.Classify(r); got != tt.want {
				t.Errorf("Classify(%s) = %v, want %v", tt.target, got, tt.want)
			}
		})
	}
}

// TestResourceClassString verifies the partition-name fragments.
func TestResourceClassString(t *testing.T) {
	tests := []struct {
		class ResourceClass
		want  string
	}{
		{ClassStaticAsset, "static"},
		{ClassWeatherAPI, "weather"},
		{ClassImage, "image"},
		{ClassOther, "other"},
	}
	for _, tt := range tests {
		if got := tt.class.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.class, got, tt.want)
		}
	}
}

// TestIsNavigation verifies navigation detection for the start-page fallback.
func TestIsNavigation(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		headers map[string]string
		want    bool
	}{
		{"fetch mode navigate", http.MethodGet, map[string]string{"Sec-Fetch-Mode": "navigate"}, true},
		{"html accept", http.MethodGet, map[string]string{"Accept": "text/html,application/xhtml+xml"}, true},
		{"json accept", http.MethodGet, map[string]string{"Accept": "application/json"}, false},
		{"post never navigates", http.MethodPost, map[string]string{"Sec-Fetch-Mode": "navigate"}, false},
		{"bare get", http.MethodGet, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/somewhere", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := isNavigation(r); got != tt.want {
				t.Errorf("isNavigation() = %v, want %v", got, tt.want)
			}
		})
	}
}
