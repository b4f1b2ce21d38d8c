package cmd

import (
	"fmt"
	"io"
)

const banner = `
    _                    _   ____            _        _
   / \   __ _  ___ _ __ | |_|  _ \ ___  _ __| |_ __ _| |
  / _ \ / _` + "`" + ` |/ _ \ '_ \| __| |_) / _ \| '__| __/ _` + "`" + ` | |
 / ___ \ (_| |  __/ | | | |_|  __/ (_) | |  | || (_| | |
/_/   \_\__, |\___|_| |_|\__|_|   \___/|_|   \__\__,_|_|
        |___/
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Agent Portal session service - Version %s\x1b[0m\n\n", Version)
}
