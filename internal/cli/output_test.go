package cli

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedprobe/internal/client"
	"feedprobe/internal/feed"
)

func TestPrinterPushResultMessages(t *testing.T) {
	id := feed.Identity{ID: "Out.Pkg", Version: "1.0.0"}

	tests := []struct {
		name    string
		result  client.ConditionalPushResult
		want    string
		notWant string
	}{
		{
			name:   "already exists",
			result: client.ConditionalPushResult{Identity: id, PackageAlreadyExists: true, PackageResult: feed.OK(feed.Entry{ID: id.ID, Version: id.Version})},
			want:   "already exists, not pushed",
		},
		{
			name:   "existence check failed",
			result: client.ConditionalPushResult{Identity: id, PackageResult: feed.Status[feed.Entry](http.StatusInternalServerError)},
			want:   "existence check returned 500 Internal Server Error",
		},
		{
			name:   "never visible",
			result: client.ConditionalPushResult{Identity: id, PushAttempted: true, PushStatusCode: http.StatusCreated, PackageResult: feed.Status[feed.Entry](http.StatusNotFound)},
			want:   "never became visible",
		},
		{
			name:    "polling stopped on an error status",
			result:  client.ConditionalPushResult{Identity: id, PushAttempted: true, PushStatusCode: http.StatusCreated, PackageResult: feed.Status[feed.Entry](http.StatusServiceUnavailable)},
			want:    "last lookup returned 503 Service Unavailable",
			notWant: "never became visible",
		},
		{
			name:   "forced push",
			result: client.ConditionalPushResult{Identity: id, PushAttempted: true, PushStatusCode: http.StatusUnauthorized},
			want:   "without a visibility check",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, newPrinter(&buf, false).PushResult("out.nupkg", tt.result, 0))
			assert.Contains(t, buf.String(), tt.want)
			if tt.notWant != "" {
				assert.NotContains(t, buf.String(), tt.notWant)
			}
		})
	}
}
