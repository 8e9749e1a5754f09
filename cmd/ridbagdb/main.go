package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulldump/goconfig"

	"github.com/fulldump/ridbagdb/bootstrap"
	"github.com/fulldump/ridbagdb/configuration"
	"github.com/fulldump/ridbagdb/logging"
)

var banner = `
 ____  _     _ ____              ____  ____
|  _ \(_) __| | __ )  __ _  __ _|  _ \| __ )
| |_) | |/ _' |  _ \ / _' |/ _' | | | |  _ \
|  _ <| | (_| | |_) | (_| | (_| | |_| | |_) |
|_| \_\_|\__,_|____/ \__,_|\__, |____/|____/
                           |___/   version ` + bootstrap.VERSION + `
`

func main() {

	c := configuration.Default()
	goconfig.Read(c)

	if c.Version {
		fmt.Println("Version:", bootstrap.VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Println(banner)
	}

	if c.ShowConfig {
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "    ")
		e.Encode(c)
	}

	logging.Configure(c.LogLevel)

	start, _ := bootstrap.Bootstrap(c)
	start()
}
