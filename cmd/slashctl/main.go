package main

import (
	"flag"
	"log"
	"os"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/tarumae/internal/commands"
	"github.com/latoulicious/tarumae/internal/config"
	"github.com/latoulicious/tarumae/pkg/logging"
)

func main() {
	action := flag.String("action", "", "Action to perform: register, delete-all, delete-specific, check")
	commandName := flag.String("command", "", "Command name for delete-specific action")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(os.Stdout, logging.Config{Level: cfg.LogLevel, Format: "console"})

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Fatal("Failed to create Discord session", logging.Error(err))
	}
	if err := dg.Open(); err != nil {
		logger.Fatal("Failed to open Discord session", logging.Error(err))
	}
	defer dg.Close()

	appID := dg.State.User.ID

	switch *action {
	case "register":
		if err := commands.RegisterSlashCommands(dg, appID, logger); err != nil {
			logger.Fatal("Failed to register slash commands", logging.Error(err))
		}

	case "delete-all":
		n, err := commands.DeleteSlashCommands(dg, appID, "", logger)
		if err != nil {
			logger.Fatal("Failed to delete slash commands", logging.Error(err))
		}
		logger.Info("Slash commands deleted", logging.Int("count", n))

	case "delete-specific":
		if *commandName == "" {
			logger.Fatal("Please provide a command name with -command flag")
		}
		if _, err := commands.DeleteSlashCommands(dg, appID, *commandName, logger); err != nil {
			logger.Fatal("Failed to delete command", logging.String("command", *commandName), logging.Error(err))
		}

	case "check":
		checkCommands(dg, appID, logger)

	default:
		log.Println("Usage:")
		log.Println("  slashctl -action register")
		log.Println("  slashctl -action delete-all")
		log.Println("  slashctl -action delete-specific -command play")
		log.Println("  slashctl -action check")
		os.Exit(1)
	}
}

// checkCommands lists registered commands and whether they match this build
func checkCommands(dg *discordgo.Session, appID string, logger logging.Logger) {
	registered, err := dg.ApplicationCommands(appID, "")
	if err != nil {
		logger.Fatal("Error fetching global commands", logging.Error(err))
	}

	known := make(map[string]bool)
	for _, cmd := range commands.SlashCommands() {
		known[cmd.Name] = true
	}

	for _, cmd := range registered {
		logger.Info("Global command",
			logging.String("name", cmd.Name),
			logging.String("id", cmd.ID),
			logging.Bool("current", known[cmd.Name]),
		)
		delete(known, cmd.Name)
	}
	for name := range known {
		logger.Warn("Command not registered", logging.String("name", name))
	}
	logger.Info("Total global commands", logging.Int("count", len(registered)))
}
