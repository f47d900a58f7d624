package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/mtreat/mtreat-backend/internal/domain/entity"
)

// Directory is a searchable copy of patient profiles.
type Directory interface {
	Index(ctx context.Context, p *entity.Patient) error
	Search(ctx context.Context, q string, size int) ([]Profile, error)
}

// ESDirectory keeps the directory in an Elasticsearch index.
type ESDirectory struct {
	ES        *elasticsearch.Client
	IndexName string
}

func NewESDirectory(es *elasticsearch.Client, index string) *ESDirectory {
	return &ESDirectory{ES: es, IndexName: index}
}

type directoryDoc struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	DateJoined string `json:"date_joined"`
	UpdatedAt  string `json:"updated_at"`
}

func (d *ESDirectory) Index(ctx context.Context, p *entity.Patient) error {
	doc := directoryDoc{
		ID:         p.ID,
		Username:   p.Username,
		Email:      p.Email,
		Phone:      p.Phone,
		Address:    p.Address,
		DateJoined: p.DateJoined.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{Index: d.IndexName, DocumentID: p.ID, Body: strings.NewReader(string(b)), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, d.ES)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("es index: %s", res.Status())
	}
	return nil
}

// Search performs a multi_match over username, email, phone and address.
func (d *ESDirectory) Search(ctx context.Context, q string, size int) ([]Profile, error) {
	switch {
	case size <= 0:
		size = 10
	case size > 50:
		size = 50
	}
	b, err := json.Marshal(searchQuery(q, size))
	if err != nil {
		return nil, err
	}

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := d.ES.Search(d.ES.Search.WithContext(c), d.ES.Search.WithIndex(d.IndexName), d.ES.Search.WithBody(strings.NewReader(string(b))))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.IsError() {
		return nil, fmt.Errorf("es search: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source directoryDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]Profile, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, Profile{Username: h.Source.Username, Email: h.Source.Email, Phone: h.Source.Phone, Address: h.Source.Address})
	}
	return out, nil
}

func searchQuery(q string, size int) map[string]any {
	if q == "" {
		return map[string]any{"query": map[string]any{"match_all": map[string]any{}}, "size": size}
	}
	return map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"username^3", "email^2", "phone^2", "address"},
			},
		},
		"size": size,
	}
}

var _ Directory = (*ESDirectory)(nil)
