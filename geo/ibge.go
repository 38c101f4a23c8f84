// Package geo looks up Brazilian municipality names from the public IBGE
// localities API. The lookup only ever feeds a form's city dropdown, so
// failures degrade to an empty list instead of erroring the caller.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DefaultBaseURL is the public IBGE localities endpoint.
const DefaultBaseURL = "https://servicodados.ibge.gov.br/api/v1/localidades"

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type municipio struct {
	Nome string `json:"nome"`
}

// CitiesByUF returns the municipality names of a state, pt-BR sorted.
// Any failure is logged and yields an empty list.
func (c *Client) CitiesByUF(ctx context.Context, uf string) []string {
	uf = strings.ToUpper(strings.TrimSpace(uf))
	if uf == "" || uf == "BRASIL" {
		// nationwide has no municipality dropdown
		return nil
	}

	url := fmt.Sprintf("%s/estados/%s/municipios", c.baseURL, uf)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Printf("geo: build cities request for %s: %v", uf, err)
		return nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("geo: fetch cities for %s: %v", uf, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("geo: fetch cities for %s: status %d", uf, resp.StatusCode)
		return nil
	}

	var municipios []municipio
	if err := json.NewDecoder(resp.Body).Decode(&municipios); err != nil {
		log.Printf("geo: decode cities for %s: %v", uf, err)
		return nil
	}

	names := make([]string, 0, len(municipios))
	for _, m := range municipios {
		if m.Nome != "" {
			names = append(names, m.Nome)
		}
	}

	coll := collate.New(language.BrazilianPortuguese)
	sort.SliceStable(names, func(i, j int) bool {
		return coll.CompareString(names[i], names[j]) < 0
	})
	return names
}
