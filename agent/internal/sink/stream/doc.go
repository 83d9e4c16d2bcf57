// Package stream is a sink that pushes every measurement to connected
// WebSocket clients as it is collected.
//
// # Protocol
//
// On connect the client receives {"event":"hello"}. Each measurement written
// to the sink is then broadcast as:
//
//	{"event":"measurement","data":{"name":...,"value":...,"labels":{...},"timestamp":...}}
//
// Clients whose outgoing buffer fills up are disconnected so one slow reader
// never delays collection. The hub sends ping frames and drops clients that
// stop answering.
//
// # Usage
//
//	hub := stream.New()
//	go hub.Run(ctx)
//	mux.Handle("/ws/stream", hub)
//	fanout := sink.NewFanout(logger, metrics, store, hub)
package stream
