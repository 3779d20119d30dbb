// Package usefetch runs JSON HTTP requests on behalf of a consumer and tracks
// their lifecycle.
//
// A Provider attached to a context carries the shared Config (base URL,
// headers, auto-fetch default, callbacks and interceptors). A Hook reads the
// nearest Provider, merges its own Options, and keeps the outcome of the
// latest execution in a State:
//
//	ctx, _ := usefetch.Provide(ctx, usefetch.Config{BaseURL: "https://api.example.com"})
//	h, err := usefetch.New[User](ctx, nil, usefetch.Options{})
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//	user := h.Get(ctx, "/users/1", nil)
//
// Starting an execution cancels the one before it, and only the latest
// execution may change State.
package usefetch
