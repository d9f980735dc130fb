package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	strip "github.com/grokify/html-strip-tags-go"
	prefixed "github.com/matterbridge/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/42wim/matrixclient/appservice"
	"github.com/42wim/matrixclient/config"
	"github.com/42wim/matrixclient/event"
	"github.com/42wim/matrixclient/pkg/matrixclient"
	"github.com/42wim/matrixclient/store"
)

var (
	version = "0.1.0"
	logger  *logrus.Entry
)

func main() {
	ourlog := logrus.New()
	ourlog.SetFormatter(&prefixed.TextFormatter{
		PrefixPadding: 13,
		DisableColors: true,
	})
	logger = ourlog.WithFields(logrus.Fields{"prefix": "main"})

	flagConfig := flag.String("conf", "matrixclient.toml", "config file")
	flagDebug := flag.Bool("debug", false, "debug mode")
	flagVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *flagVersion {
		fmt.Printf("version: %s\n", version)
		return
	}

	if err := agent.Listen(agent.Options{}); err != nil {
		logger.Errorf("Failed to start gops agent: %#v", err)
	}

	v, err := config.LoadConfig(*flagConfig)
	if err != nil {
		logger.Fatalf("Failed to load config: %s", err)
	}

	logLevel := v.GetString("LogLevel")
	if *flagDebug {
		logLevel = "debug"
	}
	if l, err := logrus.ParseLevel(logLevel); err == nil {
		ourlog.SetLevel(l)
	}

	c, err := matrixclient.New(v.GetString("Server"), v.GetString("UserID"), v.GetString("AccessToken"))
	if err != nil {
		logger.Fatalf("Failed to create client: %s", err)
	}
	c.SetLogLevel(logLevel)
	c.SyncTimeout = time.Duration(v.GetInt("SyncTimeout")) * time.Second
	c.MessageMaxAge = v.GetInt64("MessageMaxAge") * 1000
	c.HistorySize = v.GetInt("HistorySize")

	db, err := store.Open(filepath.Join(v.GetString("DataDir"), "sessions.db"))
	if err != nil {
		logger.Fatalf("Failed to open session store: %s", err)
	}
	defer db.Close()

	session := restoreSession(c, db, v)

	c.OnMessage(func(room *matrixclient.Room, ev *event.Event) {
		logger.Infof("<%s> %s: %s", roomName(room), ev.Sender, renderMessage(ev.Content))
	})
	c.OnUserJoined(func(room *matrixclient.Room, m *matrixclient.Member) {
		logger.Infof("%s joined %s", m.UserID, roomName(room))
	})
	c.OnUserLeft(func(room *matrixclient.Room, m *matrixclient.Member) {
		logger.Infof("%s left %s", m.UserID, roomName(room))
	})

	if err := c.StartSync(); err != nil {
		logger.Fatalf("Failed to start sync: %s", err)
	}

	gateway := startGateway(v)

	logger.Infof("running as %s, version %s", c.UserID, version)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	c.StopSync()

	if session != nil {
		session.SyncCursor = c.Cursor()
		if err := db.Save(session); err != nil {
			logger.Errorf("Failed to persist session: %s", err)
		}
	}
	if gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := gateway.Shutdown(ctx); err != nil {
			logger.Errorf("Gateway shutdown: %s", err)
		}
	}
}

// restoreSession reuses a cached access token and cursor when one exists
// for the configured user, logging in with the configured password
// otherwise.
func restoreSession(c *matrixclient.Client, db *store.Store, v *viper.Viper) *store.Session {
	userID := v.GetString("UserID")
	if userID != "" {
		if cached, err := db.Load(userID); err == nil && cached != nil && cached.AccessToken != "" {
			logger.Infof("resuming session for %s", userID)
			c.AccessToken = cached.AccessToken
			c.SetCursor(cached.SyncCursor)
			return cached
		}
	}

	if c.AccessToken != "" {
		session := &store.Session{
			Server:      c.Server,
			UserID:      c.UserID,
			AccessToken: c.AccessToken,
		}
		saveSession(db, session)
		return session
	}

	resp, err := c.Login(v.GetString("User"), v.GetString("Password"))
	if err != nil {
		logger.Fatalf("Login failed: %s", err)
	}
	session := &store.Session{
		Server:      c.Server,
		UserID:      resp.UserID,
		AccessToken: resp.AccessToken,
		DeviceID:    resp.DeviceID,
	}
	saveSession(db, session)
	return session
}

func saveSession(db *store.Store, session *store.Session) {
	if err := db.Save(session); err != nil {
		logger.Errorf("Failed to save session: %s", err)
	}
}

// startGateway runs the application-service receiver when a registration
// file and listen address are configured.
func startGateway(v *viper.Viper) *appservice.Gateway {
	listen := v.GetString("Gateway.Listen")
	regFile := v.GetString("Gateway.Registration")
	if listen == "" || regFile == "" {
		return nil
	}

	reg, err := appservice.LoadRegistration(regFile)
	if err != nil {
		logger.Fatalf("Failed to load registration: %s", err)
	}

	g := appservice.NewGateway(reg)
	g.MaxConcurrentRequests = v.GetInt("Gateway.MaxInFlight")
	g.OnEvent = func(ev *event.Event) {
		logger.Debugf("gateway event %s from %s", ev.Type, ev.Sender)
	}

	certFile := v.GetString("Gateway.TLSCert")
	keyFile := v.GetString("Gateway.TLSKey")
	if certFile != "" && keyFile != "" {
		err = g.StartTLS(listen, certFile, keyFile)
	} else {
		err = g.Start(listen)
	}
	if err != nil {
		logger.Fatalf("Failed to start gateway: %s", err)
	}

	return g
}

func roomName(room *matrixclient.Room) string {
	if name := room.Name(); name != "" {
		return name
	}
	return room.ID
}

// renderMessage flattens a message for a text-only surface, preferring
// the formatted body with its tags stripped.
func renderMessage(content event.Content) string {
	switch m := content.(type) {
	case *event.TextMessage:
		return renderBase(m.BaseMessage)
	case *event.NoticeMessage:
		return renderBase(m.BaseMessage)
	case *event.EmoteMessage:
		return "* " + renderBase(m.BaseMessage)
	case *event.ImageMessage:
		return fmt.Sprintf("[image] %s", m.Body)
	case *event.FileMessage:
		return fmt.Sprintf("[file] %s", m.Body)
	case event.RawMessageContent:
		return m.Body()
	default:
		return ""
	}
}

func renderBase(m event.BaseMessage) string {
	if m.FormattedBody != "" {
		return strip.StripTags(m.FormattedBody)
	}
	return m.Body
}
