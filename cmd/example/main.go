// Command example is a minimal echo link: it republishes every input
// message unchanged, demonstrating the wiring a real link's main()
// follows (config ingest -> catenae.New -> Start -> Join).
package main

import (
	"log"
	"os"

	catenae "github.com/catenae-go/catenae"
	"github.com/catenae-go/catenae/config"
	"github.com/catenae-go/catenae/dispatcher"
	"github.com/catenae-go/catenae/envelope"
	"github.com/catenae-go/catenae/rpc"
)

func echoTransform(e *envelope.Envelope) dispatcher.TransformResult {
	return dispatcher.One(envelope.New(e.Key, e.Value))
}

func setup(l *catenae.Link) error {
	l.Registry.Register("ping", func(ctx rpc.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return "pong", nil
	})
	return nil
}

func main() {
	cfg, err := config.Ingest(os.Args[1:], config.Defaults{
		Input:       []string{"example-in"},
		Output:      []string{"example-out"},
		BusEndpoint: "localhost:9092",
		MainThreads: 4,
		RPCThreads:  2,
	})
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	l, err := catenae.New("ExampleLink", cfg, echoTransform, setup)
	if err != nil {
		log.Fatalf("link: %v", err)
	}

	l.Start()
	l.Join()
}
