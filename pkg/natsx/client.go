package natsx

import (
	"cmp"
	"os"

	"github.com/nats-io/nats.go"
)

// URLEnv names the environment variable holding the NATS server URL.
const URLEnv = "HOOT_NATS_URL"

// NewClient connects to the NATS server named by HOOT_NATS_URL, falling back
// to NATS_URL and then to the default local URL. Without options the
// connection is named "hoot" and uses compression.
func NewClient(opts ...nats.Option) (*nats.Conn, error) {
	return Connect("", opts...)
}

// Connect is NewClient with an explicit server URL that wins over the
// environment when not empty.
func Connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	if len(opts) == 0 {
		opts = append(opts, nats.Name("hoot"), nats.Compression(true))
	}
	return nats.Connect(ResolveURL(url), opts...)
}

// URL returns the server URL NewClient connects to.
func URL() string {
	return ResolveURL("")
}

// ResolveURL returns override when set, otherwise the URL from the environment.
func ResolveURL(override string) string {
	return cmp.Or(override, os.Getenv(URLEnv), os.Getenv("NATS_URL"), nats.DefaultURL)
}
