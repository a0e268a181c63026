package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/multiplayer-sessions/internal/engine"
)

// Server configures the matchmaking service.
type Server struct {
	Addr        string `env:"MATCH_ADDR"         envDefault:":8080"`
	DatabaseURL string `env:"MATCH_DATABASE_URL"` // empty keeps the registry in memory
	LogLevel    string `env:"MATCH_LOG_LEVEL"    envDefault:"info"`
	LogDev      bool   `env:"MATCH_LOG_DEV"      envDefault:"false"`
	DBDebug     bool   `env:"MATCH_DB_DEBUG"     envDefault:"false"`
}

// Client configures a menu driving the session coordinator.
type Client struct {
	ServerURL            string        `env:"MATCH_SERVER_URL"         envDefault:"ws://localhost:8080/ws"`
	NumPublicConnections int           `env:"MATCH_PUBLIC_CONNECTIONS" envDefault:"4"`
	MatchType            string        `env:"MATCH_TYPE"               envDefault:"FreeForAll"`
	LobbyPath            string        `env:"MATCH_LOBBY_PATH"         envDefault:"/Game/Lobby"`
	AdvertiseAddr        string        `env:"MATCH_ADVERTISE_ADDR"     envDefault:"127.0.0.1:7777"`
	RequestTimeout       time.Duration `env:"MATCH_REQUEST_TIMEOUT"    envDefault:"30s"`
	LogLevel             string        `env:"MATCH_LOG_LEVEL"          envDefault:"info"`
}

// SessionConfig is the coordinator configuration carried by c.
func (c Client) SessionConfig() engine.Config {
	return engine.Config{
		MaxPublicConnections: c.NumPublicConnections,
		MatchType:            c.MatchType,
		LobbyPath:            c.LobbyPath,
	}
}

func LoadServer(envFiles ...string) (Server, error) {
	var cfg Server
	if err := load(&cfg, envFiles); err != nil {
		return Server{}, err
	}
	if cfg.Addr == "" {
		return Server{}, errors.New("MATCH_ADDR is empty")
	}
	return cfg, nil
}

func LoadClient(envFiles ...string) (Client, error) {
	var cfg Client
	if err := load(&cfg, envFiles); err != nil {
		return Client{}, err
	}
	if err := cfg.SessionConfig().Validate(); err != nil {
		return Client{}, err
	}
	if cfg.RequestTimeout <= 0 {
		return Client{}, fmt.Errorf("MATCH_REQUEST_TIMEOUT must be positive, got %s", cfg.RequestTimeout)
	}
	return cfg, nil
}

// load reads optional .env files (existing variables win) and then parses
// the environment into target.
func load(target any, envFiles []string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
