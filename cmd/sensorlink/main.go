// Command sensorlink publishes sensor telemetry to an MQTT broker.
package main

import (
	"errors"
	"fmt"
	"os"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/lone-faerie/sensorlink/internal/build"
)

const banner = `┌──────────────────────────────────────────────┐
│                                              │
│   ┌─┐┌─┐┌┐┌┌─┐┌─┐┬─┐┬  ┬┌┐┌┬┌─               │
│   └─┐├┤ │││└─┐│ │├┬┘│  ││││├┴┐               │
│   └─┘└─┘┘└┘└─┘└─┘┴└─┴─┘┴┘└┘┴ ┴               │
│                                              │
│     Author: lone-faerie                      │
│                                              │
│     Version: {{printf "%%-18.18s" .Version}}              │
│     Build Time: %-26.26s   │
│                                              │
└──────────────────────────────────────────────┘
`

// BannerTemplate returns the string used for templating the banner.
func BannerTemplate() string {
	return fmt.Sprintf(banner, build.BuildTime())
}

// PrintBanner prints the banner to the given commands output.
func PrintBanner(cmd *cobra.Command) error {
	t := template.New("banner")

	template.Must(t.Parse(BannerTemplate()))

	return t.Execute(cmd.OutOrStdout(), cmd.Root())
}

const fullDocsFooter = `Full documentation is available at:
https://pkg.go.dev/github.com/lone-faerie/sensorlink`

// ExitError is an error that should cause the program to exit with the given code.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func main() {
	c, err := RootCommand.ExecuteC()
	if err == nil {
		return
	}

	var exit *ExitError
	if errors.As(err, &exit) {
		c.PrintErrln("Error:", exit.Err)
		os.Exit(exit.Code)
	}

	c.PrintErrln("Error:", err)
	c.Usage()
	os.Exit(1)
}
