// Command judge-bridge is the process entrypoint: it parses Config, wires
// the store, registry, event publisher and admission facade together, and
// accepts worker connections until asked to stop. Mirrors the teacher's
// wordcountctl command-parser shape and consumer/service.go's task-group
// wiring of a listener loop and graceful stop into one supervised group.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/tranngoclamm/oj-bridge/admission"
	"github.com/tranngoclamm/oj-bridge/config"
	"github.com/tranngoclamm/oj-bridge/events"
	"github.com/tranngoclamm/oj-bridge/registry"
	"github.com/tranngoclamm/oj-bridge/session"
	"github.com/tranngoclamm/oj-bridge/store"
	"github.com/tranngoclamm/oj-bridge/taskgroup"
	"github.com/tranngoclamm/oj-bridge/transport"
)

var cfg = new(config.Root)

type cmdServe struct{}

func (cmd *cmdServe) Execute(args []string) error {
	return serve(cfg)
}

func main() {
	var parser = flags.NewParser(cfg, flags.Default)

	if _, err := parser.AddCommand("serve", "Run the judge bridge server",
		"Accept worker connections and dispatch submissions until stopped", &cmdServe{}); err != nil {
		log.WithField("error", err).Fatal("judge-bridge: failed to add serve command")
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.WithField("error", err).Fatal("judge-bridge: argument parsing failed")
	}
}

func serve(cfg *config.Root) error {
	var st, err = openStore(cfg.Store)
	if err != nil {
		return err
	}

	var reg = registry.New()
	var pub = events.NewPublisherWithRate([]byte(cfg.TopicSecret), cfg.Events.UpdateRateWindow, cfg.Events.UpdateRateLimit)
	var admit = admission.New(st, reg, pub)

	var sessCfg = session.Config{
		HandshakeTimeout:     cfg.Session.HandshakeTimeout,
		IdleTimeout:          cfg.Session.IdleTimeout,
		AckTimeout:           cfg.Session.AckTimeout,
		PingInterval:         cfg.Session.PingInterval,
		MaxFrameBytes:        cfg.Session.MaxFrameBytes,
		IgnoreProblemsPacket: cfg.Session.IgnoreProblemsPacket,
	}

	trustedCIDRs, err := transport.ParseTrustedCIDRs(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.BindAddress)
	if err != nil {
		return err
	}
	ln = transport.WrapListener(ln, trustedCIDRs)

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tasks = taskgroup.New(ctx)
	admit.QueueTasks(tasks)

	tasks.Queue("server.Accept", func() error {
		return acceptLoop(tasks.Context(), ln, sessCfg, st, pub, reg)
	})
	tasks.Queue("server.GracefulStop", func() error {
		<-tasks.Context().Done()
		return ln.Close()
	})

	log.WithField("address", cfg.Server.BindAddress).Info("judge-bridge: listening for worker connections")
	return tasks.Wait()
}

// acceptLoop accepts connections until ctx is cancelled, at which point the
// listener has already been closed by server.GracefulStop and Accept
// returns an error that is not worth reporting.
func acceptLoop(ctx context.Context, ln net.Listener, sessCfg session.Config, st store.ProjectionStore, pub *events.Publisher, reg *registry.Registry) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go runSession(ctx, conn, sessCfg, st, pub, reg)
	}
}

func runSession(ctx context.Context, raw net.Conn, sessCfg session.Config, st store.ProjectionStore, pub *events.Publisher, reg *registry.Registry) {
	var tc = transport.NewConn(raw, sessCfg.MaxFrameBytes, 0)
	var sess = session.New(sessCfg, tc, st, pub, st, reg)
	sess.Run(ctx)
}

func openStore(cfg config.StoreConfig) (store.ProjectionStore, error) {
	var poolCfg = store.PoolConfig{
		Dsn:      cfg.DSN,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Database: cfg.Database,
		User:     cfg.User,
		Password: cfg.Password,
		Schema:   cfg.Schema,
	}
	pool, err := store.NewPool(context.Background(), poolCfg)
	if err != nil {
		return nil, err
	}
	return store.NewPostgres(pool), nil
}
