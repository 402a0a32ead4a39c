package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/tarumae/internal/commands"
	"github.com/latoulicious/tarumae/internal/config"
	"github.com/latoulicious/tarumae/internal/handlers"
	"github.com/latoulicious/tarumae/internal/presence"
	"github.com/latoulicious/tarumae/pkg/audio"
	"github.com/latoulicious/tarumae/pkg/cron"
	"github.com/latoulicious/tarumae/pkg/database"
	"github.com/latoulicious/tarumae/pkg/logging"
	"github.com/latoulicious/tarumae/pkg/session"
	"github.com/latoulicious/tarumae/pkg/youtube"
)

func main() {
	// Load configuration (.env is optional)
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Output:      "stdout",
		File:        cfg.LogFile,
		RotateSize:  cfg.LogRotateMB,
		RotateCount: cfg.LogRotateCount,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	// discordgo logs through the standard library
	logging.NewStdLogAdapter(logger.With(logging.String("component", "discordgo"))).SetAsStdLogger()

	// Playback history
	dbConfig := database.DefaultDatabaseConfig()
	dbConfig.DatabasePath = cfg.DatabasePath
	dbConfig.HistoryRetention = cfg.HistoryRetention

	dbManager, err := database.NewDatabaseManager(dbConfig, logger)
	if err != nil {
		logger.Fatal("Failed to create database manager", logging.Error(err))
	}
	if err := dbManager.Connect(); err != nil {
		logger.Fatal("Failed to connect to database", logging.Error(err))
	}
	defer dbManager.Close()

	history := dbManager.History()
	if n, err := history.CloseOpenSessions(context.Background(), "interrupted", time.Now()); err != nil {
		logger.Warn("Failed to close stale history sessions", logging.Error(err))
	} else if n > 0 {
		logger.Info("Closed stale history sessions", logging.Int64("count", n))
	}

	recorder := database.NewHistoryRecorder(history, logger)

	retention, err := cron.NewRetentionManager(func(ctx context.Context, cutoff time.Time) (int64, error) {
		stats, err := history.Prune(ctx, cutoff)
		if err != nil {
			return 0, err
		}
		return stats.SessionsDeleted + stats.PlaysDeleted, nil
	}, cfg.HistoryRetention, cfg.HistoryCleanupSchedule, logger)
	if err != nil {
		logger.Fatal("Failed to schedule history retention", logging.Error(err))
	}
	retention.Start()

	// Create a new Discord session using the provided token
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Fatal("Failed to create Discord session", logging.Error(err))
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	presenceManager := presence.NewPresenceManager(dg, logger)
	announcer := commands.NewAnnouncer(dg, cfg.MessageDeletion, logger)

	playerConfig := audio.DefaultPlayerConfig()
	playerConfig.FFmpegPath = cfg.FFmpegPath
	playerConfig.Bitrate = cfg.OpusBitrate

	resolverConfig := youtube.DefaultConfig()
	resolverConfig.YtDlpPath = cfg.YtDlpPath

	manager, err := session.NewManager(session.NewStore(), session.Dependencies{
		Resolver:  youtube.NewResolver(resolverConfig, logger),
		Transport: audio.NewTransport(dg, logger),
		Players:   audio.NewFactory(playerConfig, logger),
		Observer:  session.Observers{recorder, announcer, presenceManager},
	}, session.Config{TeardownDelay: cfg.TeardownDelay}, logger)
	if err != nil {
		logger.Fatal("Failed to create session manager", logging.Error(err))
	}

	limiter := commands.NewGuildLimiter(cfg.CommandRate, cfg.CommandBurst)
	commandHandler := commands.NewHandler(manager, history, limiter, cfg.CommandPrefix, logger)
	eventHandlers := handlers.New(commandHandler, logger)

	dg.AddHandler(eventHandlers.MessageHandler)
	dg.AddHandler(eventHandlers.InteractionHandler)
	dg.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildDelete) {
		limiter.Forget(g.ID)
	})

	// Open a websocket connection to Discord and begin listening.
	if err := dg.Open(); err != nil {
		logger.Fatal("Failed to open Discord session", logging.Error(err))
	}

	if err := commands.RegisterSlashCommands(dg, dg.State.User.ID, logger); err != nil {
		logger.Warn("Slash commands unavailable", logging.Error(err))
	}

	presenceManager.UpdateDefaultPresence()
	stopPresence := make(chan struct{})
	presenceManager.StartPeriodicUpdates(5*time.Minute, stopPresence)

	logger.Info("Bot is running. Press CTRL-C to exit.")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Info("Shutting down", logging.Int("active_sessions", manager.ActiveSessions()))
	close(stopPresence)
	manager.Close()
	announcer.Close()
	recorder.Close()
	retention.Stop()
	dg.Close()
}
