// Package httpclient builds the retrying HTTP client shared by the outbound
// integrations.
package httpclient

import (
	"time"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
)

// New returns a client that retries connection errors and 5xx responses.
func New(retryMax int, timeout time.Duration) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = leveled{}
	return c
}

// leveled sends retryablehttp logs to logrus at debug level so retries do not
// flood the info stream.
type leveled struct{}

func fields(kv []interface{}) log.Fields {
	f := make(log.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}

func (leveled) Error(msg string, kv ...interface{}) { log.WithFields(fields(kv)).Error(msg) }
func (leveled) Warn(msg string, kv ...interface{})  { log.WithFields(fields(kv)).Warn(msg) }
func (leveled) Info(msg string, kv ...interface{})  { log.WithFields(fields(kv)).Debug(msg) }
func (leveled) Debug(msg string, kv ...interface{}) { log.WithFields(fields(kv)).Debug(msg) }
