// Command bot joins a relay seat and plays it with the computer policy.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/enaribe/startup-ludo/engine/agent"
	"github.com/enaribe/startup-ludo/service/internal/content"
	"github.com/enaribe/startup-ludo/service/internal/game"
	"github.com/enaribe/startup-ludo/service/internal/transport"
	"github.com/sirupsen/logrus"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "relay websocket endpoint")
	token := flag.String("token", os.Getenv("SEAT_TOKEN"), "seat token issued by the relay")
	policy := flag.String("policy", "greedy", "move policy: greedy or first_legal")
	delay := flag.Duration("delay", 500*time.Millisecond, "thinking time per decision")
	contentFile := flag.String("content", "", "content pools file, empty for the built-in pools")
	verbose := flag.Bool("v", false, "log every game event")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if *token == "" {
		logrus.Fatal("a seat token is required (-token or SEAT_TOKEN)")
	}
	catalog, err := content.LoadFile(*contentFile)
	if err != nil {
		logrus.WithError(err).Fatal("loading content")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	peer, err := transport.Dial(dialCtx, transport.PeerOptions{
		URL:              *url,
		Token:            *token,
		Content:          catalog.Provider(""),
		Lookup:           catalog.Lookup,
		Computer:         true,
		Policy:           agent.ParsePolicy(*policy),
		ComputerDelayMin: *delay,
		ComputerDelayMax: *delay * 2,
		OnEvent: func(ev game.GameEvent) {
			logrus.WithField("payload", ev.Payload).Debug(ev.Type)
		},
	})
	cancel()
	if err != nil {
		logrus.WithError(err).Fatal("joining relay")
	}
	defer peer.Shutdown()
	logrus.WithField("seat", peer.Seat()).Info("seated")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-peer.Done():
			if res, over := peer.Session().Result(); over {
				logrus.WithFields(logrus.Fields{"winner": res.Winner, "turns": res.Turns}).Info("session over")
				return
			}
			logrus.Warn("connection lost, reconnecting")
			rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := peer.Reconnect(rctx)
			cancel()
			if err != nil {
				logrus.WithError(err).Error("reconnect failed")
				time.Sleep(2 * time.Second)
			}
		case <-ticker.C:
			if res, over := peer.Session().Result(); over {
				logrus.WithFields(logrus.Fields{"winner": res.Winner, "turns": res.Turns}).Info("session over")
				return
			}
		}
	}
}
