// Command luckystard serves the luckystar backend API.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/luckystar-app/luckystar"
	"github.com/luckystar-app/luckystar/llm"
	"github.com/luckystar-app/luckystar/server"
	"github.com/luckystar-app/luckystar/store"
)

type Config struct {
	Port    int    `env:"PORT" envDefault:"8000"`
	Logfile string `env:"LOGFILE" envDefault:"luckystard.log"`
	DBPath  string `env:"DB_PATH" envDefault:"luckystar.db"`

	// HomeCountry marks the country that gets a small autocomplete boost.
	HomeCountry string `env:"HOME_COUNTRY" envDefault:"china"`

	LLM struct {
		// BaseURL selects an OpenAI-compatible endpoint. When empty and
		// GeminiKey is set, the native Gemini REST API is used instead.
		BaseURL   string `env:"BASE_URL"`
		APIKey    string `env:"API_KEY"`
		Model     string `env:"MODEL"`
		GeminiKey string `env:"GEMINI_API_KEY"`
	} `envPrefix:"LLM_"`
}

func loadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	if err := godotenv.Load(configPath); err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func initLogging(logFile *os.File) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	slog.SetDefault(slog.New(slog.NewTextHandler(io.MultiWriter(logFile, os.Stderr), nil)))
	slog.Info("logging initialized", "log_file", logFile.Name())
}

func buildAssistant(cfg Config) llm.Assistant {
	if cfg.LLM.BaseURL == "" && cfg.LLM.GeminiKey != "" {
		return llm.NewGemini(cfg.LLM.GeminiKey, cfg.LLM.Model)
	}
	return llm.NewChatCompletions(llm.ChatCompletionsConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})
}

func main() {
	loadEnvFile()

	var config Config
	if err := env.Parse(&config); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	logFile, err := os.OpenFile(config.Logfile, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	initLogging(logFile)

	gaz := gazetteer.New(gazetteer.WithHomeCountry(config.HomeCountry))

	st, err := store.Open(config.DBPath)
	if err != nil {
		log.Fatalf("error opening store: %v", err)
	}
	defer st.Close()

	backend := server.NewBackend(gaz, st, buildAssistant(config))

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Mount("/api/v1", backend.Routes())

	slog.Info("starting server", "port", config.Port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", config.Port), r); err != nil {
		log.Fatalf("listen and serve returned error: %v", err)
	}
}
