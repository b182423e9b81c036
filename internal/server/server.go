package server

import "net/http"

// Handler builds the HTTP surface consumed by the presentation layer: the
// JSON API plus the websocket event stream.
func Handler(hub *Hub, eng SessionEngine, reader TranscriptReader, opts Options) http.Handler {
	mux := http.NewServeMux()

	registerWSRoute(mux, hub, eng)
	registerAPIRoutes(mux, eng, reader, opts)

	return mux
}
