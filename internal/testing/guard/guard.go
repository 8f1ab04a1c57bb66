package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("BYFAITH_TEST_MODE") == "" {
			_ = os.Setenv("BYFAITH_TEST_MODE", "1")
		}
	})
}
