// Package config loads process configuration from the environment.
// A .env file is honored when present so local runs match deployment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Bot holds everything the chat bot process needs.
type Bot struct {
	DiscordToken  string  `env:"DISCORD_TOKEN,required"`
	RedisURL      string  `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	MongoURL      string  `env:"MONGO_URL"`
	MongoDatabase string  `env:"MONGO_DB" envDefault:"rickbot"`
	GoogleAPIKey  string  `env:"GOOGLE_API_KEY"`
	Game          string  `env:"RICKBOT_GAME" envDefault:"rick-bot.xyz"`
	PlaylistURL   string  `env:"PLAYLIST_URL" envDefault:"https://rick-bot.xyz/request_playlist"`
	PlayerVolume  float64 `env:"PLAYER_VOLUME" envDefault:"0.6"`
	LogLevel      string  `env:"LOG_LEVEL" envDefault:"info"`
}

// Dashboard holds the web dashboard configuration. The dashboard shares
// Redis and Mongo with the bot but runs as its own process.
type Dashboard struct {
	Addr              string `env:"DASHBOARD_ADDR" envDefault:":5000"`
	SecretKey         string `env:"SECRET_KEY,required"`
	RedisURL          string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	MongoURL          string `env:"MONGO_URL"`
	MongoDatabase     string `env:"MONGO_DB" envDefault:"rickbot"`
	OAuthClientID     string `env:"OAUTH2_CLIENT_ID"`
	OAuthClientSecret string `env:"OAUTH2_CLIENT_SECRET"`
	OAuthRedirectURL  string `env:"OAUTH2_REDIRECT_URI" envDefault:"http://localhost:5000/confirm_login"`
	APIBaseURL        string `env:"API_BASE_URL" envDefault:"https://discord.com/api"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadBot parses the bot configuration from the environment.
func LoadBot() (*Bot, error) {
	_ = godotenv.Load()

	var cfg Bot
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse bot config: %w", err)
	}
	return &cfg, nil
}

// LoadDashboard parses the dashboard configuration from the environment.
func LoadDashboard() (*Dashboard, error) {
	_ = godotenv.Load()

	var cfg Dashboard
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse dashboard config: %w", err)
	}
	return &cfg, nil
}
