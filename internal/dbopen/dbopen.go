// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package dbopen turns PREFIX_* environment variables into a PostgreSQL
// connection URL.
package dbopen

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

var ErrDatabaseNotConfigured = errors.New("database connection configuration is unavailable")

const maxApplicationNameLen = 63

// GetDatabaseURLFromEnv returns PREFIX_URL when set. Otherwise it builds a
// URL from PREFIX_HOST, PREFIX_PORT, PREFIX_USER, PREFIX_PASSWORD,
// PREFIX_DBNAME and PREFIX_SSLMODE. HOST and DBNAME are required and PORT
// defaults to 5432. A trailing "_" is added to prefix when missing.
func GetDatabaseURLFromEnv(prefix string) (string, error) {
	return databaseURL(prefix, os.Getenv)
}

func databaseURL(prefix string, getenv func(string) string) (string, error) {
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	if urlStr := getenv(prefix + "URL"); urlStr != "" {
		return urlStr, nil
	}

	host := getenv(prefix + "HOST")
	dbname := getenv(prefix + "DBNAME")

	var missing []string
	if host == "" {
		missing = append(missing, prefix+"HOST")
	}
	if dbname == "" {
		missing = append(missing, prefix+"DBNAME")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	port := getenv(prefix + "PORT")
	if port == "" {
		port = "5432"
	}

	u := &url.URL{
		Scheme: "postgresql",
		Host:   host + ":" + port,
		Path:   dbname,
	}
	if user := getenv(prefix + "USER"); user != "" {
		if pass := getenv(prefix + "PASSWORD"); pass != "" {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}

	q := u.Query()
	if sslmode := getenv(prefix + "SSLMODE"); sslmode != "" {
		q.Set("sslmode", sslmode)
	}
	if appName := applicationName(getenv("OTEL_SERVICE_NAME")); appName != "" {
		q.Set("application_name", appName)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// applicationName maps name onto the characters Postgres shows cleanly in
// pg_stat_activity and truncates it to the server limit.
func applicationName(name string) string {
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
	if len(name) > maxApplicationNameLen {
		name = name[:maxApplicationNameLen]
	}
	return name
}
