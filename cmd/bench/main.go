package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/fulldump/goconfig"
)

type Config struct {
	Test    string `usage:"name of the test: ALL | HOT | SPREAD"`
	Base    string `usage:"base URL"`
	N       int64  `usage:"number of links"`
	Batch   int    `usage:"links sent per request"`
	Workers int    `usage:"number of workers"`
}

var cleanups []func()

func main() {

	defer func() {
		fmt.Println("Cleaning up...")
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

	c := Config{
		Test:    "all",
		Base:    "",
		N:       100_000,
		Batch:   10,
		Workers: 16,
	}
	goconfig.Read(&c)

	switch strings.ToUpper(c.Test) {
	case "ALL":
		TestLinks(c, false)
		TestLinks(c, true)
	case "HOT":
		TestLinks(c, false)
	case "SPREAD":
		TestLinks(c, true)
	default:
		log.Fatalf("Unknown test %s", c.Test)
	}

}
