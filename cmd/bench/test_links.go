package main

import (
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

// TestLinks adds N links in batches. Hot sends every batch to the same
// document so commits keep conflicting, spread gives each worker its own.
func TestLinks(c Config, spread bool) {

	if c.Base == "" {
		start, stop := CreateServer(&c)
		defer stop()
		go start()
	}
	WaitOperating(c.Base)

	transport := &http.Transport{
		MaxConnsPerHost:     1024,
		MaxIdleConns:        1024,
		MaxIdleConnsPerHost: 1024,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   10 * time.Second,
	}

	sources := make([]string, c.Workers)
	for i := range sources {
		if i > 0 && !spread {
			sources[i] = sources[0]
			continue
		}
		document, err := Post(client, c.Base+"/v1/documents", JSON{
			"cluster": 1,
			"fields":  JSON{"worker": i},
		})
		if err != nil {
			fmt.Println("ERROR: create document:", err.Error())
			os.Exit(3)
		}
		sources[i] = documentPath(document["rid"].(string))
	}

	items := c.N
	var failures int64

	t0 := time.Now()
	Parallel(c.Workers, func(worker int) {
		for {
			n := atomic.AddInt64(&items, -int64(c.Batch))
			if n+int64(c.Batch) <= 0 {
				return
			}

			targets := make([]string, 0, c.Batch)
			for i := int64(0); i < int64(c.Batch) && n+i >= 0; i++ {
				targets = append(targets, fmt.Sprintf("#2:%d", n+i))
			}

			_, err := Post(client, c.Base+"/v1/documents/"+sources[worker]+":addLink", JSON{
				"bag":     "links",
				"targets": targets,
			})
			if err != nil {
				atomic.AddInt64(&failures, 1)
			}
		}
	})

	took := time.Since(t0)
	mode := "hot"
	if spread {
		mode = "spread"
	}
	fmt.Println("mode:", mode)
	fmt.Println("sent:", c.N)
	fmt.Println("failed requests:", failures)
	fmt.Println("took:", took)
	fmt.Printf("Throughput: %.2f links/sec\n", float64(c.N)/took.Seconds())
}
