package factory

import (
	"fmt"
	"net/url"
	"strings"
)

// parseClickHouseDSN splits "clickhouse://host:port?table=name" into the
// native-protocol address and target table.
func parseClickHouseDSN(dsn string) (addr, table string, err error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", err
	}
	addr = u.Host
	if addr == "" {
		addr = "localhost:9000" // default ClickHouse native port
	}
	table = u.Query().Get("table")
	if table == "" {
		table = "supervisor_events"
	}
	return addr, table, nil
}

// parseOpenSearchDSN splits "opensearch://host:port/index" into the HTTP
// base URL and index name. The transport is plain HTTP unless secure=true.
func parseOpenSearchDSN(dsn string) (baseURL, index string, err error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", err
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("opensearch DSN %q missing host", dsn)
	}
	scheme := "http"
	if u.Query().Get("secure") == "true" {
		scheme = "https"
	}
	index = strings.Trim(u.Path, "/")
	if index == "" {
		index = "supervisor-events"
	}
	return scheme + "://" + u.Host, index, nil
}
