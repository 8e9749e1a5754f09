package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/fulldump/ridbagdb/bootstrap"
	"github.com/fulldump/ridbagdb/configuration"
)

type JSON = map[string]any

func Parallel(workers int, f func(worker int)) {
	wg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			f(worker)
		}(i)
	}
	wg.Wait()
}

func TempDir() (string, func()) {
	dir, err := os.MkdirTemp("", "ridbagdb_bench_*")
	if err != nil {
		panic("Could not create temp directory: " + err.Error())
	}

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

func CreateServer(c *Config) (start, stop func()) {
	dir, cleanup := TempDir()
	cleanups = append(cleanups, cleanup)

	conf := configuration.Default()
	conf.Dir = dir
	conf.ShowBanner = false
	c.Base = "http://" + conf.HttpAddr

	return bootstrap.Bootstrap(conf)
}

// WaitOperating polls the stats until the database finished loading.
func WaitOperating(base string) {
	for {
		resp, err := http.Get(base + "/v1/stats")
		if err == nil {
			stats := JSON{}
			json.NewDecoder(resp.Body).Decode(&stats)
			resp.Body.Close()
			if stats["status"] == "operating" {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func Post(client *http.Client, url string, body any) (JSON, error) {

	payload, _ := json.Marshal(body)

	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}

	result := JSON{}
	err = json.NewDecoder(resp.Body).Decode(&result)
	return result, err
}

// documentPath turns "#1:0" into "1/0".
func documentPath(rid string) string {
	var cluster, position int64
	fmt.Sscanf(rid, "#%d:%d", &cluster, &position)
	return fmt.Sprintf("%d/%d", cluster, position)
}
