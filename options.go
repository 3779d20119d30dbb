package usefetch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nozzle/usefetch/internal/json"
)

// Options describe the request a Hook makes and how it auto-fetches. A zero
// field means "not set" when Options are merged.
type Options struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any

	// AutoFetch requests the URL on construction and whenever the options change.
	AutoFetch bool
	// Debounce delays each auto-fetch; a change inside the window restarts it.
	Debounce time.Duration
}

// merge returns o with every field set in override replacing its own.
// Headers are replaced as a whole, not merged key by key.
func (o Options) merge(override Options) Options {
	merged := o
	if override.URL != "" {
		merged.URL = override.URL
	}
	if override.Method != "" {
		merged.Method = override.Method
	}
	if override.Headers != nil {
		merged.Headers = override.Headers
	}
	if override.Body != nil {
		merged.Body = override.Body
	}
	if override.AutoFetch {
		merged.AutoFetch = true
	}
	if override.Debounce != 0 {
		merged.Debounce = override.Debounce
	}
	if merged.Method == "" {
		merged.Method = http.MethodGet
	}
	return merged
}

// fingerprint serializes the options so two equal values compare equal.
// Bodies that cannot be encoded fall back to their %#v form.
func (o Options) fingerprint() string {
	type wire struct {
		URL       string            `json:"url"`
		Method    string            `json:"method"`
		Headers   map[string]string `json:"headers"`
		Body      any               `json:"body"`
		AutoFetch bool              `json:"autoFetch"`
		Debounce  time.Duration     `json:"debounce"`
	}
	w := wire{o.URL, o.Method, o.Headers, o.Body, o.AutoFetch, o.Debounce}
	b, err := json.MarshalStable(w)
	if err != nil {
		w.Body = fmt.Sprintf("%#v", o.Body)
		b, _ = json.MarshalStable(w)
	}
	return string(b)
}
