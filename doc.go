// Package shopprobe drives a shopping-list microservices API through a fixed
// set of probes: health, service registry, registration, login, catalogue
// browsing and search, list creation, adding items, viewing a list, the user
// dashboard and global search.
//
// Sequential run:
//
//	ctx := context.Background()
//	p, _ := shopprobe.New(ctx, shopprobe.WithBaseURL("http://localhost:3000"))
//	sum, _ := p.RunAll(ctx)
//	_ = shopprobe.WriteReport("junit", "report.xml", sum)
//
// A single probe:
//
//	res, _ := p.Run(ctx, "health")
//	if !res.Passed {
//		log.Println(res.ErrorText)
//	}
//
// Interactive menu on a terminal:
//
//	err := p.Menu(ctx, shopprobe.NewLineReader(os.Stdin, os.Stdout))
//
// Probes never abort a run: transport errors, error statuses and failed
// checks are recorded in the Result. Successful register, login and
// create-list probes update the Session that later probes depend on.
//
// Tests can pace runs with a fake clock and pin generated data:
//
//	p, _ := shopprobe.New(ctx,
//		shopprobe.WithClock(clockwork.NewFakeClock()),
//		shopprobe.WithRand(rand.New(rand.NewPCG(1, 2))),
//	)
package shopprobe
