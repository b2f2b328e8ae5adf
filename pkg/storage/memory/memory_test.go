package memory

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/shardquery/shardquery/pkg/storage/test"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemdbStorage(t *testing.T) {
	ds := New(WithScanBatchSize(2))
	test.RunAllTests(t, ds)
}
