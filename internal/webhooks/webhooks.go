// Package webhooks notifies external URLs when a migration reaches a
// terminal state. Delivery is best-effort; failures are logged and never
// affect the run.
package webhooks

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"
)

const (
	defaultTimeout     = 500 * time.Millisecond
	defaultConcurrency = 4
)

// Payload is the webhook payload for a terminal migration.
type Payload struct {
	UserID            string `json:"user_id"`
	MigrationID       string `json:"migration_id"`
	Status            string `json:"status"`
	ItemsMigrated     int    `json:"items_migrated"`
	ConflictsResolved int    `json:"conflicts_resolved"`
	DurationMS        int64  `json:"duration_ms"`
	Error             string `json:"error,omitempty"`
	Timestamp         string `json:"timestamp"`
}

// Dispatch posts the payload to every URL with bounded concurrency and a
// short per-request timeout, then returns once all attempts finish.
func Dispatch(urls []string, payload Payload) {
	if len(urls) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("webhooks: encode payload for migration %s failed: %v", payload.MigrationID, err)
		return
	}

	client := &http.Client{Timeout: defaultTimeout}
	sem := make(chan struct{}, defaultConcurrency)
	var wg sync.WaitGroup

	for _, url := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(url string) {
			defer wg.Done()
			defer func() { <-sem }()
			post(client, url, body)
		}(url)
	}

	wg.Wait()
}

func post(client *http.Client, url string, body []byte) {
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("webhooks: post to %s failed: %v", url, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("webhooks: post to %s returned %d", url, resp.StatusCode)
	}
}
