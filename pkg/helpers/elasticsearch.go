package helpers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
)

// NewESClient creates an Elasticsearch client with sane defaults and optional basic auth.
func NewESClient(addrs []string, username, password string) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: addrs,
		Username:  username,
		Password:  password,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: 5 * time.Second,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		},
	}
	return elasticsearch.NewClient(cfg)
}

// patientsMapping keeps phone and username as keywords and address as text.
const patientsMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "keyword"},
      "username":    {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "email":       {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "phone":       {"type": "keyword"},
      "address":     {"type": "text"},
      "date_joined": {"type": "date"},
      "updated_at":  {"type": "date"}
    }
  }
}`

// EnsurePatientsIndex creates the patients index with its mapping when it does not exist.
func EnsurePatientsIndex(ctx context.Context, es *elasticsearch.Client, index string) error {
	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := es.Indices.Exists([]string{index}, es.Indices.Exists.WithContext(c))
	if err != nil {
		return err
	}
	_ = res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	res, err = es.Indices.Create(index,
		es.Indices.Create.WithContext(c),
		es.Indices.Create.WithBody(strings.NewReader(patientsMapping)),
	)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", index, res.Status())
	}
	return nil
}
