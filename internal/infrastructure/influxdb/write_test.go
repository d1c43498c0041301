package influxdb

import (
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

func TestDispatchPoint(t *testing.T) {
	ts := time.Unix(1760000000, 0)

	tests := []struct {
		name string
		rec  DispatchRecord
		want string
	}{
		{
			name: "action",
			rec: DispatchRecord{
				Event:    "action_request",
				Service:  "ContentDirectory",
				Action:   "Browse",
				Code:     0,
				Duration: 1500 * time.Microsecond,
			},
			want: "upnp_dispatch,action=Browse,event=action_request,service=ContentDirectory code=0i,duration_ms=1.5 1760000000000000000",
		},
		{
			name: "subscription without action",
			rec: DispatchRecord{
				Event:    "subscription_request",
				Service:  "ConnectionManager",
				Code:     0,
				Duration: 2 * time.Millisecond,
			},
			want: "upnp_dispatch,event=subscription_request,service=ConnectionManager code=0i,duration_ms=2 1760000000000000000",
		},
		{
			name: "rejected without service",
			rec: DispatchRecord{
				Event: "get_var_request",
				Code:  401,
			},
			want: "upnp_dispatch,event=get_var_request code=401i,duration_ms=0 1760000000000000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.TrimSpace(write.PointToLineProtocol(dispatchPoint(tt.rec, ts), time.Nanosecond))
			if got != tt.want {
				t.Errorf("line protocol = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCatalogChangePoint(t *testing.T) {
	p := catalogChangePoint(42, 3, time.Unix(1760000000, 0))

	line := write.PointToLineProtocol(p, time.Second)
	if !strings.HasPrefix(line, "catalog_change ") {
		t.Errorf("line protocol = %q, want catalog_change measurement", line)
	}
	for _, field := range []string{"containers=3i", "system_update_id=42u"} {
		if !strings.Contains(line, field) {
			t.Errorf("line protocol %q missing %s", line, field)
		}
	}
}

func TestWritesDroppedWhenDisconnected(t *testing.T) {
	c := &Client{}

	// No write API: these must return without touching it.
	c.WriteDispatch(DispatchRecord{Event: "action_request"})
	c.WriteCatalogChange(1, 1)
	c.WritePoint("x", nil, map[string]interface{}{"v": 1})
	c.Flush()

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
