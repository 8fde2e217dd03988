// Package tourdex provides an embedded Go client for the tourdex scene
// search engine: it builds a fuzzy-searchable index over a virtual tour
// scene graph and dispatches navigation to the matched element.
//
//	client, _ := tourdex.New(ctx, tourdex.WithSceneFile("scene.json"))
//	defer client.Close()
//
//	hits, _ := client.Search(ctx, "lobby")
//	if len(hits) > 0 {
//	    _ = client.Dispatch(ctx, hits[0].Entry)
//	}
//
// An optional external dataset (CSV or JSON) enriches the structural index
// with editorial names and descriptions:
//
//	client, _ := tourdex.New(ctx,
//	    tourdex.WithSceneFile("scene.json"),
//	    tourdex.WithDatasetURL("https://example.com/rooms.csv"),
//	    tourdex.WithDatasetAsPrimary(),
//	)
package tourdex
