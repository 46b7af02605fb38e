package catalog

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name     string
		query    Query
		nilWant  bool
		contains []string
		excludes []string
	}{
		{
			name:    "no restriction",
			query:   Query{MaxCloudCover: 100},
			nilWant: true,
		},
		{
			name:     "cloud cover only",
			query:    Query{MaxCloudCover: 20},
			contains: []string{`"eo:cloud_cover"`, "20"},
			excludes: []string{`"platform"`},
		},
		{
			name:     "single platform",
			query:    Query{MaxCloudCover: 100, Platforms: []string{"landsat-8"}},
			contains: []string{`"platform"`, `"landsat-8"`},
			excludes: []string{`"eo:cloud_cover"`, `"or"`},
		},
		{
			name:     "cloud cover and platforms",
			query:    Query{MaxCloudCover: 50, Platforms: []string{"sentinel-2a", "sentinel-2b"}},
			contains: []string{`"and"`, `"or"`, `"sentinel-2a"`, `"sentinel-2b"`, `"eo:cloud_cover"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := BuildFilter(tt.query)
			if tt.nilWant {
				if f != nil {
					t.Errorf("BuildFilter() = %v, want nil", f)
				}
				return
			}
			if f == nil {
				t.Fatal("BuildFilter() = nil")
			}

			data, err := json.Marshal(f)
			if err != nil {
				t.Fatalf("json.Marshal() error = %v", err)
			}
			encoded := string(data)
			for _, want := range tt.contains {
				if !strings.Contains(encoded, want) {
					t.Errorf("filter %s should contain %s", encoded, want)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(encoded, unwanted) {
					t.Errorf("filter %s should not contain %s", encoded, unwanted)
				}
			}
		})
	}
}

func TestBuildFilter_PlatformIsCaseInsensitive(t *testing.T) {
	f := BuildFilter(Query{MaxCloudCover: 100, Platforms: []string{"sentinel-2a"}})
	if f == nil {
		t.Fatal("BuildFilter() = nil")
	}

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var decoded struct {
		Op   string `json:"op"`
		Args []struct {
			Op   string            `json:"op"`
			Args []json.RawMessage `json:"args"`
		} `json:"args"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}

	if decoded.Op != "=" || len(decoded.Args) != 2 {
		t.Fatalf("filter %s: want an equality with two operands", data)
	}
	for i, arg := range decoded.Args {
		if arg.Op != "casei" {
			t.Errorf("operand %d of %s is not wrapped in casei", i, data)
		}
	}
	if !strings.Contains(string(decoded.Args[0].Args[0]), `"platform"`) {
		t.Errorf("left operand %s should be the platform property", decoded.Args[0].Args[0])
	}
	if string(decoded.Args[1].Args[0]) != `"sentinel-2a"` {
		t.Errorf("right operand %s should be the platform literal", decoded.Args[1].Args[0])
	}
}
