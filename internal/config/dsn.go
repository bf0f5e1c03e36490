package config

import (
	"net"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// DSNValue builds the driver DSN. For sqlite it is the database file path;
// for mysql the host settings are rendered by the driver's own formatter.
func (c DatabaseRuntimeConfig) DSNValue() string {
	if v := strings.TrimSpace(c.DSN); v != "" {
		return v
	}
	if c.Driver == "sqlite" {
		return orDefault(c.Path, defaultSQLitePath)
	}

	m := mysql.NewConfig()
	m.Net = "tcp"
	m.Addr = net.JoinHostPort(orDefault(c.Host, defaultDBHost), strconv.Itoa(orDefaultInt(c.Port, defaultDBPort)))
	m.User = orDefault(c.User, defaultDBUser)
	m.Passwd = strings.TrimSpace(c.Password)
	m.DBName = orDefault(c.Name, defaultDBName)
	m.ParseTime = c.ParseTime
	if loc, err := time.LoadLocation(orDefault(c.Loc, defaultDBLoc)); err == nil {
		m.Loc = loc
	}
	m.Params = map[string]string{"charset": orDefault(c.Charset, defaultDBCharset)}
	for k, v := range c.Params {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			m.Params[k] = v
		}
	}
	return m.FormatDSN()
}

// URLValue returns redis.url when set, else a redis:// or rediss:// URL
// assembled from the host fields.
func (c RedisRuntimeConfig) URLValue() string {
	if u := normalizeRedisRawURL(c.URL); u != "" {
		return u
	}
	u := &neturl.URL{
		Scheme: "redis",
		Host:   net.JoinHostPort(orDefault(c.Host, defaultRedisHost), strconv.Itoa(orDefaultInt(c.Port, defaultRedisPort))),
		Path:   "/" + strconv.Itoa(max(c.DB, defaultRedisDB)),
	}
	if c.TLS {
		u.Scheme = "rediss"
	}
	switch user, pass := strings.TrimSpace(c.Username), strings.TrimSpace(c.Password); {
	case pass != "":
		u.User = neturl.UserPassword(user, pass)
	case user != "":
		u.User = neturl.User(user)
	}
	return u.String()
}
