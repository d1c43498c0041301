// Package influxdb records media server telemetry in InfluxDB.
//
// Points are written through influxdb-client-go v2 with batching, and every
// point carries the device UDN as a udn tag.
//
// # Measurements
//
//	upnp_dispatch   tags: event, service, action   fields: code, duration_ms
//	catalog_change                                 fields: system_update_id, containers
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Server.UDN)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDispatch(influxdb.DispatchRecord{
//	    Event: "action_request", Service: "ContentDirectory", Action: "Browse",
//	    Duration: elapsed,
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking; batch errors are delivered to the SetOnError
// callback.
package influxdb
