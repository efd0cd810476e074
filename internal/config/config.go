package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string
	PostgresURL          string
	KafkaBrokers         []string
	ShipmentTopic        string
	EmailServiceURL      string
	OrdersServiceURL     string
	CatalogServiceURL    string
	UsersServiceURL      string
	OTLPEndpoint         string
	JWTSecret            string
	TokenTTL             time.Duration
	PublicBaseURL        string
	MigrationsPath       string
	NotificationConsumer string
	AdminEmail           string
	AdminName            string
	AdminPassword        string
}

// Load reads configuration from the environment, optionally layered over a
// YAML file named by CONFIG_FILE. defaultPort is the service's listen port
// when PORT is unset.
func Load(defaultPort string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", defaultPort)
	v.SetDefault("shipment_topic", "order.shipped")
	v.SetDefault("otel_exporter_otlp_endpoint", "localhost:4317")
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("public_base_url", "http://127.0.0.1:8080")
	v.SetDefault("migrations_path", "file://migrations")
	v.SetDefault("notification_consumer_group", "shipment-notifier")
	v.SetDefault("admin_name", "Admin")

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Port:                 v.GetString("port"),
		PostgresURL:          v.GetString("postgres_url"),
		ShipmentTopic:        v.GetString("shipment_topic"),
		EmailServiceURL:      v.GetString("email_service_url"),
		OrdersServiceURL:     v.GetString("orders_service_url"),
		CatalogServiceURL:    v.GetString("catalog_service_url"),
		UsersServiceURL:      v.GetString("users_service_url"),
		OTLPEndpoint:         v.GetString("otel_exporter_otlp_endpoint"),
		JWTSecret:            v.GetString("jwt_secret"),
		TokenTTL:             v.GetDuration("token_ttl"),
		PublicBaseURL:        strings.TrimRight(v.GetString("public_base_url"), "/"),
		MigrationsPath:       v.GetString("migrations_path"),
		NotificationConsumer: v.GetString("notification_consumer_group"),
		AdminEmail:           v.GetString("admin_email"),
		AdminName:            v.GetString("admin_name"),
		AdminPassword:        v.GetString("admin_password"),
	}

	if brokers := v.GetString("kafka_brokers"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	return cfg, nil
}
