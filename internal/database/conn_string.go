package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/wslink/internal/config"
)

// ApplicationName is reported to PostgreSQL for every connection.
const ApplicationName = "wslink"

// BuildConnString builds a PostgreSQL connection URL from config.
// Credentials are escaped, so passwords may contain any character.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	port := cfg.Port
	if port == 0 {
		port = config.DefaultDBPort
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", ApplicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
