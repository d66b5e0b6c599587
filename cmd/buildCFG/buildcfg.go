package buildCFG

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"venuebook/internal/mailer"
)

type ServerConfig struct {
	Port   string
	Origin string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
	}
	origin := cfg.GetString("server.origin")
	if origin == "" {
		origin = "http://localhost:" + port
	}
	log.Info().Str("port", port).Msg("server config loaded")
	return ServerConfig{Port: port, Origin: origin}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("db.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, fmt.Errorf("db.master_dsn is required")
	}
	var slaveDSNs []string
	if raw := cfg.GetString("db.slave_dsns"); raw != "" {
		for _, dsn := range strings.Split(raw, ",") {
			if dsn = strings.TrimSpace(dsn); dsn != "" {
				slaveDSNs = append(slaveDSNs, dsn)
			}
		}
	}

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("db.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("db.max_idle_conns"),
		ConnMaxLifetime: time.Duration(cfg.GetInt("db.conn_max_lifetime_seconds")) * time.Second,
	}
	log.Info().Int("slaves", len(slaveDSNs)).Msg("db config loaded")
	return masterDSN, slaveDSNs, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rc.Url == "" {
		return rc, fmt.Errorf("rabbit.url is required")
	}
	if rc.Exchange == "" {
		rc.Exchange = "venuebook.notifications"
	}
	if rc.Queue == "" {
		rc.Queue = "venuebook.notifications.mail"
	}
	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("rabbit config loaded")
	return rc, nil
}

func BuildMailConfig(cfg *config.Config, log *zerolog.Logger) mailer.Config {
	mc := mailer.Config{
		Host:     cfg.GetString("mail.host"),
		Port:     cfg.GetInt("mail.port"),
		From:     cfg.GetString("mail.from"),
		Password: cfg.GetString("mail.password"),
		Dev:      cfg.GetString("mail.mode") != "smtp",
	}
	if mc.From == "" {
		mc.From = "no-reply@example.edu"
	}
	if mc.Port == 0 {
		mc.Port = 587
	}
	if mc.Host == "" {
		mc.Dev = true
	}
	log.Info().Bool("dev", mc.Dev).Msg("mail config loaded")
	return mc
}

// BuildAdminInbox is the recipient for new-submission notifications.
func BuildAdminInbox(cfg *config.Config) string {
	inbox := cfg.GetString("mail.admin_inbox")
	if inbox == "" {
		inbox = "events-admin@example.edu"
	}
	return inbox
}
