package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Order modes. cart_link sends a clickable Amazon cart link, shopping_list
// pushes the item onto the Alexa shopping list, voice_order speaks the order
// through an Alexa device and notify_only sends the notification without any
// fulfillment action.
const (
	ModeCartLink     = "cart_link"
	ModeShoppingList = "shopping_list"
	ModeVoiceOrder   = "voice_order"
	ModeNotifyOnly   = "notify_only"
)

type Config struct {
	Port        string
	Environment string

	// Grocy catalog source
	GrocyURL             string
	GrocyAPIKey          string
	GrocyASINField       string
	GrocyOrderUnitsField string

	// Home Assistant fulfillment transport
	HassURL             string
	HassToken           string
	AlexaEntityID       string
	ShoppingListEntity  string
	NotificationService string

	// Telegram notification transport
	TelegramEnabled     bool
	TelegramBotToken    string
	TelegramChatID      string
	TelegramPollTimeout int

	// Order policy
	OrderMode            string
	CheckIntervalMinutes int
	MaxOrdersPerDay      int
	DryRun               bool
	NotifyOnOrder        bool
	AmazonDomain         string

	// SQLite state store
	SQLitePath string

	// Kafka audit events (optional, disabled when no brokers configured)
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool

	// Redis status cache
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int
	StatusCacheTTLSec int

	// API auth
	JWTSecret string
}

func Load() *Config {
	// .env file is optional; fall back to the process environment
	_ = godotenv.Load()

	kafkaBrokers := splitCSV(getEnv("KAFKA_BROKERS", ""))

	cfg := &Config{
		Port:        getEnv("PORT", "8084"),
		Environment: getEnv("ENVIRONMENT", "development"),

		GrocyURL:             getEnv("GROCY_URL", "http://localhost:9283"),
		GrocyAPIKey:          getEnv("GROCY_API_KEY", ""),
		GrocyASINField:       getEnv("GROCY_ASIN_FIELD", "Amazon_ASIN"),
		GrocyOrderUnitsField: getEnv("GROCY_ORDER_UNITS_FIELD", "Amazon_order_units"),

		HassURL:             getEnv("HASS_URL", "http://homeassistant.local:8123"),
		HassToken:           getEnv("HASS_TOKEN", ""),
		AlexaEntityID:       getEnv("HASS_ALEXA_ENTITY_ID", "media_player.echo_dot"),
		ShoppingListEntity:  getEnv("HASS_SHOPPING_LIST_ENTITY", "todo.alexa_shopping_list"),
		NotificationService: getEnv("HASS_NOTIFICATION_SERVICE", "notify.persistent_notification"),

		TelegramEnabled:     getEnvAsBool("TELEGRAM_ENABLED", false),
		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:      getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramPollTimeout: getEnvAsInt("TELEGRAM_POLL_TIMEOUT_SEC", 30),

		OrderMode:            getEnv("ORDER_MODE", ModeCartLink),
		CheckIntervalMinutes: getEnvAsInt("ORDER_CHECK_INTERVAL", 60),
		MaxOrdersPerDay:      getEnvAsInt("ORDER_MAX_PER_DAY", 10),
		DryRun:               getEnvAsBool("ORDER_DRY_RUN", true),
		NotifyOnOrder:        getEnvAsBool("ORDER_NOTIFY", true),
		AmazonDomain:         getEnv("AMAZON_DOMAIN", "www.amazon.de"),

		SQLitePath: getEnv("SQLITE_PATH", "./data/reorder.db"),

		KafkaBrokers: kafkaBrokers,
		KafkaTopic:   getEnv("KAFKA_TOPIC", "reorder.events"),
		KafkaEnabled: len(kafkaBrokers) > 0,

		RedisHost:         getEnv("REDIS_HOST", "localhost"),
		RedisPort:         getEnv("REDIS_PORT", "6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvAsInt("REDIS_DB", 0),
		StatusCacheTTLSec: getEnvAsInt("STATUS_CACHE_TTL_SEC", 30),

		JWTSecret: getEnv("JWT_SECRET", ""),
	}

	// Legacy alias kept for existing deployments
	if cfg.OrderMode == "voice_command" {
		cfg.OrderMode = ModeVoiceOrder
	}

	return cfg
}

// ValidMode reports whether the configured order mode is one we support.
func (c *Config) ValidMode() bool {
	switch c.OrderMode {
	case ModeCartLink, ModeShoppingList, ModeVoiceOrder, ModeNotifyOnly:
		return true
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.ToLower(value) == "true" || value == "1"
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
