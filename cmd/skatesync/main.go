package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"skatesync/pkg/auth"
	"skatesync/pkg/coordinator"
	"skatesync/pkg/game"
	gametypes "skatesync/pkg/game/types"
	"skatesync/pkg/log"
	"skatesync/pkg/queue"
	"skatesync/pkg/reachability"
	"skatesync/pkg/realtime"
	"skatesync/pkg/server"
	"skatesync/pkg/store"
	gamesync "skatesync/pkg/sync"

	"github.com/google/uuid"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level")
	dbPath := flag.String("db", "skatesync.db", "Path to the local SQLite database")
	serverURL := flag.String("server-url", "http://localhost:8080", "Game server base URL")
	brokerURL := flag.String("broker-url", "ws://localhost:8081/ws", "Realtime broker WebSocket URL")
	gameID := flag.Int64("game-id", 0, "Game to open")
	username := flag.String("username", "", "Local player's username")
	opponent := flag.String("opponent", "", "Opponent's username")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	if *gameID == 0 || *username == "" {
		panic("game-id and username must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var gameStore store.Store
	if connStr := os.Getenv("DATABASE_URL"); connStr != "" {
		gameStore = store.NewPostgresStore(connStr)
	} else {
		gameStore = store.NewSQLiteStore(*dbPath)
	}
	if err := gameStore.Open(ctx); err != nil {
		panic(fmt.Sprintf("Failed to open store: %v", err))
	}
	defer gameStore.Close(ctx)

	monitor := reachability.NewManualMonitor(true)

	tokenSource := serverTokenSource()
	gameService := server.NewHTTPGameService(server.NewHTTPGameServiceOptions{
		BaseURL:     *serverURL,
		TokenSource: tokenSource,
	})

	engine := gamesync.NewEngine(gamesync.NewEngineOptions{
		Store:       gameStore,
		GameService: gameService,
		Monitor:     monitor,
	})
	go func() {
		if err := engine.Start(ctx); err != nil {
			log.Error("Sync engine stopped: %v", err)
		}
	}()

	eventQueue := queue.NewInMemoryQueue(1000)
	channel := realtime.NewWSChannel(realtime.NewWSChannelOptions{
		BrokerURL:  *brokerURL,
		EventQueue: eventQueue,
	})
	if err := channel.Connect(ctx); err != nil {
		log.Warn("Failed to connect to realtime broker: %v", err)
		monitor.SetOnline(false)
	} else {
		defer channel.Close()
		go func() {
			if err := channel.HandleMessages(ctx); err != nil {
				log.Warn("Realtime channel closed: %v", err)
				monitor.SetOnline(false)
			}
		}()
	}

	snapshot, err := gameStore.GetGameState(ctx, *gameID)
	if err != nil {
		if !store.IsNotFound(err) {
			panic(fmt.Sprintf("Failed to load game state: %v", err))
		}
		snapshot = &gametypes.GameSnapshot{
			GameID:      *gameID,
			P1Username:  *username,
			P2Username:  *opponent,
			WhosSet:     *username,
			CalledTrick: gametypes.NoTrickCalled,
		}
		log.Info("Starting new game %d", *gameID)
	}

	deviceID := uuid.New().String()

	session := game.NewSession(game.NewSessionOptions{
		Engine:   engine,
		Channel:  channel,
		Monitor:  monitor,
		DeviceID: deviceID,
		Snapshot: snapshot,
	})

	coord := coordinator.NewCoordinator(coordinator.NewCoordinatorOptions{
		Session:    session,
		Channel:    channel,
		EventQueue: eventQueue,
		DeviceID:   deviceID,
	})
	if monitor.IsOnline() {
		if err := coord.Subscribe(ctx, *gameID); err != nil {
			log.Warn("Failed to subscribe to game events: %v", err)
		}
	}
	go func() {
		if err := coord.Start(ctx); err != nil {
			log.Error("Coordinator stopped: %v", err)
		}
	}()

	go func() {
		for notice := range engine.Notices() {
			fmt.Printf("[game %d] %s\n", notice.GameID, notice.Message)
		}
	}()

	log.Info("Syncing game %d as %s", *gameID, *username)
	<-ctx.Done()
	log.Info("Shutting down")
}

// serverTokenSource builds the credential used for game server calls.
// AUTH_TOKEN carries a pre-issued bearer token. Without one, requests
// go out unauthenticated and the server decides whether to accept.
func serverTokenSource() auth.TokenSource {
	return auth.NewStaticTokenSource(os.Getenv("AUTH_TOKEN"))
}
