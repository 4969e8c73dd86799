package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/abluka/internal/config"
	"github.com/DoyleJ11/abluka/internal/engine"
	"github.com/DoyleJ11/abluka/internal/lobby"
	"github.com/DoyleJ11/abluka/internal/logging"
	"github.com/DoyleJ11/abluka/internal/prefs"
	"github.com/DoyleJ11/abluka/internal/remote"
	"github.com/DoyleJ11/abluka/internal/session"
	"github.com/DoyleJ11/abluka/internal/store"
)

func main() {
	cfg := config.Load()

	server := flag.String("server", cfg.ServerURL, "session server base URL")
	create := flag.Bool("create", false, "host a new online session")
	join := flag.String("join", "", "join the online session with this code")
	timeLimit := flag.Int("time", cfg.TimeLimit, "seconds per player, 0 for unlimited")
	prefsPath := flag.String("prefs", cfg.PrefsPath, "preferences file")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger, err := logging.New(*logLevel, cfg.LogDev)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := prefs.Open(*prefsPath, logger.Named("prefs"))
	lb := lobby.NewLobby(ctx, lobby.Options{
		Logger: logger.Named("lobby"),
		Prefs:  p,
		Names:  lobby.Names{P1: p.PlayerName(engine.P1), P2: p.PlayerName(engine.P2)},
		Rules:  engine.Rules{TimeLimitSec: max(0, *timeLimit)},
	})

	g, gctx := errgroup.WithContext(ctx)

	snaps := make(chan lobby.Snapshot, 16)
	send(lb, lobby.Join{ClientID: "terminal", Outbox: snaps})
	g.Go(func() error {
		for snap := range snaps {
			fmt.Print(render(snap))
		}
		return nil
	})

	var adapter *session.Adapter
	if *create || *join != "" {
		adapter = session.New(remote.New(*server, nil, logger.Named("remote")), logger.Named("session"), nil)
		if err := goOnline(ctx, lb, adapter, p, *create, *join); err != nil {
			send(lb, lobby.Shutdown{})
			_ = g.Wait()
			logger.Error("could not go online", zap.Error(err))
			fmt.Fprintln(os.Stderr, "online:", err)
			os.Exit(1)
		}
		g.Go(func() error { return forward(gctx, adapter, lb) })
	}

	readCommands(ctx, lb, p, os.Stdin)

	if adapter != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := adapter.Close(closeCtx); err != nil {
			logger.Warn("leave session", zap.Error(err))
		}
		cancel()
	}
	send(lb, lobby.Shutdown{})
	stop()
	_ = g.Wait()
}

func goOnline(ctx context.Context, lb *lobby.Lobby, a *session.Adapter, p *prefs.Store, create bool, code string) error {
	player := engine.P1
	if create {
		c, err := a.CreateSession(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Session code: %s\n", c)
	} else {
		if err := a.JoinSession(ctx, strings.ToUpper(code)); err != nil {
			return err
		}
		player = engine.P2
		fmt.Println("Joined. Type ready when you are set to play.")
	}

	send(lb, lobby.GoOnline{Player: player, Publisher: a, Host: create})
	send(lb, lobby.SetName{Player: player, Name: p.PlayerName(player)})
	return nil
}

// forward feeds remote session events into the lobby.
func forward(ctx context.Context, a *session.Adapter, lb *lobby.Lobby) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-a.Events():
			switch ev.Type {
			case session.EvtSessionDeleted:
				send(lb, lobby.SessionDeleted{})
			case session.EvtRemoteState:
				send(lb, remoteUpdate(ev.Record))
			}
		}
	}
}

func remoteUpdate(rec store.Record) lobby.RemoteUpdate {
	st, ok := session.StateFromRecord(rec)
	p1, p2 := session.Names(rec)
	msg := lobby.RemoteUpdate{
		Remote:     st,
		Names:      lobby.Names{P1: p1, P2: p2},
		SeatsOnly:  !ok,
		GuestReady: rec.Player2 != nil && rec.Player2.Ready,
	}
	if rec.GameStartedAt != nil {
		msg.RoundStarted = *rec.GameStartedAt
	}
	return msg
}

var errLobbyClosed = errors.New("game closed")

const help = `commands:
  <row> <col>        click a square (0-6)
  undo               rewind one action (offline only)
  new                start a new round, keeping scores
  reset              start over with scores cleared
  time <seconds>     set the per-player clock, 0 for unlimited
  name <p1|p2> <n>   set a display name
  ready              tell the host you are set (online guest)
  set <key> <value>  volume 0-1, muted on|off, dark on|off, theme <name>
  prefs              show saved preferences
  quit
`

func readCommands(ctx context.Context, lb *lobby.Lobby, p *prefs.Store, in *os.File) {
	fmt.Print(help)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = l
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "quit", "exit", "q":
			return
		case "help", "?":
			fmt.Print(help)
		case "undo", "rewind":
			reply := make(chan error, 1)
			if err := ask(lb, lobby.Rewind{Reply: reply}, reply); err != nil {
				fmt.Println(err)
			}
		case "ready":
			send(lb, lobby.Ready{})
		case "set":
			if len(fields) < 3 {
				fmt.Println("usage: set <key> <value>")
				continue
			}
			if err := setPref(p, fields[1], strings.Join(fields[2:], " ")); err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Print(describePrefs(p))
		case "prefs":
			fmt.Print(describePrefs(p))
		case "new":
			send(lb, lobby.NewRound{})
		case "reset":
			send(lb, lobby.NewSession{})
		case "time":
			if len(fields) != 2 {
				fmt.Println("usage: time <seconds>")
				continue
			}
			secs, err := strconv.Atoi(fields[1])
			if err != nil || secs < 0 {
				fmt.Println("seconds must be a non-negative number")
				continue
			}
			send(lb, lobby.SetTimeLimit{Seconds: secs})
		case "name":
			if len(fields) < 3 || !engine.Player(fields[1]).Valid() {
				fmt.Println("usage: name <p1|p2> <name>")
				continue
			}
			send(lb, lobby.SetName{Player: engine.Player(fields[1]), Name: strings.Join(fields[2:], " ")})
		default:
			at, ok := parseCell(fields)
			if !ok {
				fmt.Println("unknown command; type help")
				continue
			}
			reply := make(chan error, 1)
			if err := ask(lb, lobby.Click{Cell: at, Reply: reply}, reply); err != nil {
				fmt.Println(err)
			}
		}
	}
}

// send drops the message once the lobby has stopped.
func send(lb *lobby.Lobby, m lobby.Msg) bool {
	select {
	case lb.Inbox() <- m:
		return true
	case <-lb.Done():
		return false
	}
}

func ask(lb *lobby.Lobby, m lobby.Msg, reply <-chan error) error {
	if !send(lb, m) {
		return errLobbyClosed
	}
	select {
	case err := <-reply:
		return err
	case <-lb.Done():
		return errLobbyClosed
	}
}

func parseCell(fields []string) (engine.Coord, bool) {
	if len(fields) != 2 {
		return engine.Coord{}, false
	}
	r, err1 := strconv.Atoi(fields[0])
	c, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return engine.Coord{}, false
	}
	return engine.Coord{Row: r, Col: c}, true
}
