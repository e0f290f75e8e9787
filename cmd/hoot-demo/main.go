package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/casualjim/hoot"
	"github.com/casualjim/hoot/pkg/slogx"
	"github.com/casualjim/hoot/pubsub"
	"github.com/casualjim/hoot/transport"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
	"github.com/phsym/zeroslog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	setupLogging(os.Stderr, slog.LevelInfo)
}

func setupLogging(w io.Writer, level slog.Level) {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}),
	))
}

const usage = `commands:
  send <from> <to> <message>   unicast from one peer to another
  multicast <from> <message>   send to every registered peer
  close <peer>                 close the context a peer lives in
  unregister <peer>            drop a name from the routing table
  routes                       print the routing table
  brokers                      list the top-level contexts with a broker here
  help                         show this text
  exit                         quit`

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(os.Stderr, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	if err := run(ctx, cfg, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("hoot demo failed")
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	slog.Info("serving metrics", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server stopped", slogx.Error(err))
	}
}

// syncWriter serializes writes from listeners running on different contexts.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type demo struct {
	cfg     Config
	ctxs    contexts
	top     transport.Handle
	peers   map[string]*hoot.Peer
	out     io.Writer
	printer *pp.PrettyPrinter
}

func run(ctx context.Context, cfg Config, in io.Reader, w io.Writer) error {
	logger := slog.Default()
	out := &syncWriter{w: w}

	ctxs, err := newContexts(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ctxs.shutdown()

	top, err := openTop(ctxs, cfg)
	if err != nil {
		return fmt.Errorf("open top-level context: %w", err)
	}

	printer := pp.New()
	printer.SetOutput(out)
	printer.SetColoringEnabled(!color.NoColor)

	d := &demo{cfg: cfg, ctxs: ctxs, top: top, peers: make(map[string]*hoot.Peer), out: out, printer: printer}
	for _, name := range cfg.Peers {
		if err := d.addPeer(ctx, name); err != nil {
			return err
		}
	}
	d.awaitRegistration(ctx)

	fmt.Fprintln(out, usage)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "%s ", color.CyanString("hoot>"))
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") {
			return nil
		}
		if err := d.exec(ctx, line); err != nil {
			fmt.Fprintln(out, color.RedString("error: %v", err))
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func openTop(ctxs contexts, cfg Config) (transport.Handle, error) {
	if n, ok := ctxs.(*natsContexts); ok && !cfg.HostBroker {
		return n.Handle(cfg.Top)
	}
	return ctxs.open(cfg.Top)
}

func (d *demo) addPeer(ctx context.Context, name string) error {
	if _, ok := d.peers[name]; ok {
		return fmt.Errorf("peer %q already exists", name)
	}
	self, err := d.ctxs.open(name)
	if err != nil {
		return fmt.Errorf("open context for %q: %w", name, err)
	}
	p, err := hoot.NewPeer(ctx, d.ctxs, self, d.top, name,
		hoot.HostBroker(d.cfg.HostBroker),
		hoot.WithBrokerName(d.cfg.BrokerName),
	)
	if err != nil {
		return fmt.Errorf("create peer %q: %w", name, err)
	}
	p.Listen(func(_ context.Context, content json.RawMessage, ev pubsub.Event) {
		fmt.Fprintf(d.out, "%s %s <- %s: %s\n", color.GreenString("recv"), name, ev.Source, content)
	})
	d.peers[name] = p
	return nil
}

func (d *demo) awaitRegistration(ctx context.Context) {
	timeout := time.After(2 * time.Second)
	for name, p := range d.peers {
		select {
		case <-p.Ready():
		case <-ctx.Done():
			return
		case <-timeout:
			slog.Warn("peer did not register in time", slog.String("peer", name), slog.String("state", p.State().String()))
			return
		}
	}
}

func (d *demo) exec(ctx context.Context, line string) error {
	cmd, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(cmd) {
	case "help":
		fmt.Fprintln(d.out, usage)
		return nil
	case "routes":
		routes, ok := hoot.Routes(d.top)
		if !ok {
			return errors.New("no broker runs in this process")
		}
		d.printer.Println(routes)
		return nil
	case "brokers":
		d.printer.Println(hoot.Brokers())
		return nil
	case "send":
		args := strings.SplitN(rest, " ", 3)
		if len(args) != 3 {
			return errors.New("usage: send <from> <to> <message>")
		}
		p, err := d.peer(args[0])
		if err != nil {
			return err
		}
		return p.Send(ctx, args[1], args[2])
	case "multicast":
		from, msg, ok := strings.Cut(rest, " ")
		if !ok {
			return errors.New("usage: multicast <from> <message>")
		}
		p, err := d.peer(from)
		if err != nil {
			return err
		}
		return p.Multicast(ctx, msg)
	case "close":
		p, err := d.peer(strings.TrimSpace(rest))
		if err != nil {
			return err
		}
		p.Close()
		return d.ctxs.close(p.Handle())
	case "unregister":
		name := strings.TrimSpace(rest)
		n := hoot.Unregister(d.top, name, nil)
		fmt.Fprintf(d.out, "removed %d endpoint(s) for %q\n", n, name)
		return nil
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func (d *demo) peer(name string) (*hoot.Peer, error) {
	p, ok := d.peers[name]
	if !ok {
		return nil, fmt.Errorf("unknown peer %q", name)
	}
	return p, nil
}
