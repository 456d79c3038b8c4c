package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"kiira-hq/gateway/pkg/config"
)

func TestUpstreamStack_LocalFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cat.png")
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		allow   bool
		wantErr bool
	}{
		{name: "disabled by default", allow: false, wantErr: true},
		{name: "enabled", allow: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Upstream.AllowLocalFiles = tt.allow

			stack := newUpstreamStack(cfg, quietLogger(), nil, nil)
			defer stack.Close()

			file, err := stack.client.FetchMedia(context.Background(), path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FetchMedia() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && file.ContentType != "image/png" {
				t.Errorf("ContentType = %q, want image/png", file.ContentType)
			}
		})
	}
}
