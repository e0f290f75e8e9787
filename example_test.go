package hoot_test

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/casualjim/hoot"
	"github.com/casualjim/hoot/pubsub"
	"github.com/casualjim/hoot/transport"
)

func ExampleNewPeer() {
	ctx := context.Background()
	tr := transport.NewMemory()
	defer tr.Shutdown()
	top := tr.Open("host")

	alpha, err := hoot.NewPeer(ctx, tr, tr.Open("alpha"), top, "alpha")
	if err != nil {
		panic(err)
	}
	beta, err := hoot.NewPeer(ctx, tr, tr.Open("beta"), top, "beta")
	if err != nil {
		panic(err)
	}

	got := make(chan string, 1)
	beta.Listen(func(_ context.Context, content json.RawMessage, ev pubsub.Event) {
		got <- fmt.Sprintf("%s -> %s: %s", ev.Source, ev.Target, content)
	})

	<-alpha.Ready()
	<-beta.Ready()
	if err := alpha.Send(ctx, "beta", map[string]string{"greeting": "hi"}); err != nil {
		panic(err)
	}
	fmt.Println(<-got)
	// Output: alpha -> beta: {"greeting":"hi"}
}
