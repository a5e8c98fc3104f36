package etl

import (
	"io"
	"os"
	"testing"

	"github.com/vantagehq/vantage/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}
