// Command mxsync is a minimal CLI demonstrating the SDK: it logs a client
// in against a homeserver, runs the background sync loop, and prints a
// line for every timeline event it observes until interrupted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/matrixgo/sdk/client"
	"github.com/matrixgo/sdk/crypto"
	"github.com/matrixgo/sdk/mxapi"
	"github.com/matrixgo/sdk/store/sqlite"
	"github.com/matrixgo/sdk/syncengine"
)

var (
	flagHomeserver = flag.String("homeserver", "", "Homeserver base URL, e.g. https://matrix.org")
	flagUser       = flag.String("user", "", "Matrix user ID localpart or full MXID")
	flagPassword   = flag.String("password", "", "Account password")
	flagDB         = flag.String("db", "mxsync.db", "Path to the sqlite store (':memory:' for a throwaway session)")
	flagVerbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()
	if *flagHomeserver == "" || *flagUser == "" || *flagPassword == "" {
		fmt.Fprintln(os.Stderr, "usage: mxsync -homeserver https://matrix.org -user alice -password hunter2")
		os.Exit(2)
	}
	if *flagVerbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		logrus.WithError(err).Fatal("mxsync: fatal error")
	}
}

func run(ctx context.Context) error {
	db, err := sqlite.Open(*flagDB, 50<<20)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	homeserverURL, err := client.CheckServer(ctx, mxapi.NewHTTPClient(*flagHomeserver), *flagHomeserver)
	if err != nil {
		return fmt.Errorf("check server: %w", err)
	}
	api := mxapi.NewHTTPClient(homeserverURL)

	c := client.New(api, db, crypto.Disabled{}, client.Config{
		ClientName:     "mxsync",
		Homeserver:     homeserverURL,
		BackgroundSync: true,
	})

	c.SetHooks(syncengine.Hooks{
		OnLoginStateChanged: func(loggedIn bool) {
			logrus.WithField("loggedIn", loggedIn).Info("mxsync: login state changed")
		},
		OnSyncError: func(err error) {
			logrus.WithError(err).Warn("mxsync: sync error")
		},
		OnEvent: func(u syncengine.EventUpdate) {
			if u.Kind != syncengine.KindTimeline {
				return
			}
			logrus.WithFields(logrus.Fields{
				"room":   u.RoomID,
				"sender": u.Event.SenderID,
				"type":   u.Event.Type,
			}).Info("mxsync: event")
		},
	})

	loginBody, _ := json.Marshal(map[string]interface{}{
		"type":     "m.login.password",
		"user":     *flagUser,
		"password": *flagPassword,
	})
	if err := c.Login(ctx, loginBody); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Dispose(shutdownCtx)
	}()

	logrus.Info("mxsync: logged in, syncing until interrupted")
	<-ctx.Done()
	logrus.Info("mxsync: shutting down")
	return nil
}
