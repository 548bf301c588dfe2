package natsx

import (
	"os"

	"github.com/nats-io/nats.go"
)

// NewClient creates a new connection to a NATS server using the URL specified
// in the NATS_URL environment variable, falling back to nats.DefaultURL.
// Without explicit options the connection is named "agora" and compressed.
func NewClient(opts ...nats.Option) (*nats.Conn, error) {
	return Connect(os.Getenv("NATS_URL"), opts...)
}

// Connect dials the given URL, or nats.DefaultURL when url is empty.
func Connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if len(opts) == 0 {
		opts = append(opts, nats.Name("agora"), nats.Compression(true))
	}
	return nats.Connect(url, opts...)
}
