package bench

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BenchObserv is one benchmark observation: the configuration that ran and
// what each side reported.
type BenchObserv struct {
	RunID    string    `json:"runId"`
	When     time.Time `json:"when"`
	Protocol string    `json:"protocol"`
	Params   string    `json:"params"`

	ServerStats   string `json:"serverStats"`
	ClientStats   string `json:"clientStats"`
	ServerSuccess bool   `json:"serverSuccess"`
	ClientSuccess bool   `json:"clientSuccess"`
	ServerError   string `json:"serverError"`
	ClientError   string `json:"clientError"`
}

// NewBenchObserv stamps a fresh run id.
func NewBenchObserv(protocol, params string) *BenchObserv {
	return &BenchObserv{
		RunID:    uuid.NewString(),
		When:     time.Now().UTC(),
		Protocol: protocol,
		Params:   params,
	}
}

// String renders the observation in the delimited report block.
func (o *BenchObserv) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", o.RunID)
	fmt.Fprintf(&b, "Parameters:\n%s: %s\n", o.Protocol, o.Params)
	fmt.Fprintln(&b, DelimLine)
	fmt.Fprintln(&b, "Server stats:")
	fmt.Fprintln(&b, DelimLine)
	fmt.Fprintf(&b, "Success: %t [%s]\n", o.ServerSuccess, o.ServerError)
	fmt.Fprintln(&b, o.ServerStats)
	fmt.Fprintln(&b, DelimLine)
	fmt.Fprintln(&b, "Client stats:")
	fmt.Fprintln(&b, DelimLine)
	fmt.Fprintf(&b, "Success: %t [%s]\n", o.ClientSuccess, o.ClientError)
	fmt.Fprintln(&b, o.ClientStats)
	return b.String()
}
