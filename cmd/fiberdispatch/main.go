package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/demin80/fiberdispatch/core"
	obs "github.com/demin80/fiberdispatch/observability/prometheus"
)

func main() {
	app := &cli.App{
		Name:  "fiberdispatch",
		Usage: "operate a fiberdispatch dispatcher from the command line",
		Commands: []*cli.Command{
			runCommand(),
			statsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to a TOML config file",
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "start a dispatcher, submit a demo workload, and serve /metrics until it drains",
		Flags: []cli.Flag{
			configFlag(),
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("load config: %v", err), 1)
	}

	reg := prom.NewRegistry()
	exporter, err := obs.NewMetricsExporter("fiberdispatch", reg, obs.ExporterOptions{})
	if err != nil {
		return cli.Exit(fmt.Sprintf("new metrics exporter: %v", err), 1)
	}
	poller, err := obs.NewSnapshotPoller(reg, 200*time.Millisecond)
	if err != nil {
		return cli.Exit(fmt.Sprintf("new snapshot poller: %v", err), 1)
	}

	d := core.New(cfg.toCoreConfig(exporter))
	d.Start(context.Background())
	defer func() {
		d.Terminate()
		_ = d.Join()
	}()

	poller.AddDispatcher("demo", d)
	poller.Start(context.Background())
	defer poller.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		_ = server.ListenAndServe()
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	if err := runDemoWorkload(d, cfg.WorkloadSize); err != nil {
		return cli.Exit(fmt.Sprintf("demo workload: %v", err), 1)
	}

	fmt.Printf("Prometheus endpoint is up at http://127.0.0.1%s/metrics\n", cfg.MetricsAddr)
	fmt.Println("Try: curl -s http://127.0.0.1" + cfg.MetricsAddr + "/metrics | grep '^fiberdispatch_'")
	time.Sleep(2 * time.Second)
	return nil
}

// runDemoWorkload submits workloadSize independent chains, each a
// PostFirst stage that does some cooperative work, a Then stage that
// issues a blocking I/O call via PostAsyncIo and waits on it
// coroutine-style, and an OnError stage that returns -1 together with the
// propagated error, and waits for all of them to resolve.
func runDemoWorkload(d *core.Dispatcher, workloadSize int) error {
	if workloadSize <= 0 {
		workloadSize = 1
	}

	contexts := make([]*core.Context, 0, workloadSize)
	for i := 0; i < workloadSize; i++ {
		i := i
		ctx, err := d.PostFirst(core.AnyQueue, false, func(c *core.Context, y *core.Yielder) (any, error) {
			return i * i, nil
		})
		if err != nil {
			return err
		}
		ctx.Then(core.AnyQueue, func(c *core.Context, y *core.Yielder) (any, error) {
			prev, err := c.GetPrev()
			if err != nil {
				return nil, err
			}
			p, err := c.PostAsyncIo(0, false, func(ioCtx *core.Context, ioY *core.Yielder) (any, error) {
				time.Sleep(2 * time.Millisecond)
				return prev, nil
			})
			if err != nil {
				return nil, err
			}
			return c.AwaitPromise(y, p)
		}, false)
		ctx.OnError(core.AnyQueue, func(c *core.Context, y *core.Yielder) (any, error) {
			_, err := c.GetPrev()
			return -1, err
		}, false)
		ctx.End()
		contexts = append(contexts, ctx)
	}

	for _, ctx := range contexts {
		if _, err := ctx.WaitAtBlocking(-1); err != nil {
			return err
		}
	}
	return nil
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "start a dispatcher, submit a demo workload, and print its final queue stats",
		Flags: []cli.Flag{
			configFlag(),
		},
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("load config: %v", err), 1)
	}

	d := core.New(cfg.toCoreConfig(nil))
	d.Start(context.Background())
	defer func() {
		d.Terminate()
		_ = d.Join()
	}()

	if err := runDemoWorkload(d, cfg.WorkloadSize); err != nil {
		return cli.Exit(fmt.Sprintf("demo workload: %v", err), 1)
	}

	stats, err := d.Stats(core.FilterAll, core.AllQueue)
	if err != nil {
		return cli.Exit(fmt.Sprintf("stats: %v", err), 1)
	}
	for _, q := range stats.Coro {
		fmt.Printf("coro[%d]: size=%d enqueued=%d dequeued=%d\n", q.ID, q.Size, q.Enqueued, q.Dequeued)
	}
	for i, q := range stats.Io {
		fmt.Printf("io[%d]: size=%d\n", i, q.Size)
	}
	return nil
}
