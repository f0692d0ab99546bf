package metrics

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu         sync.Mutex
	collectors []prometheus.Collector
)

// register queues collectors from each file's init.
func register(cs ...prometheus.Collector) {
	mu.Lock()
	defer mu.Unlock()
	collectors = append(collectors, cs...)
}

// Register adds every engine collector to reg. Collectors reg already holds are skipped, so
// a second call is a no-op.
func Register(reg prometheus.Registerer) (int, error) {
	mu.Lock()
	defer mu.Unlock()
	added := 0
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return added, fmt.Errorf("metrics: register collector %d: %w", added, err)
		}
		added++
	}
	return added, nil
}

// MustRegister adds the engine collectors to the default registry served on /metrics.
func MustRegister() {
	if _, err := Register(prometheus.DefaultRegisterer); err != nil {
		panic(err)
	}
}

// Collectors is the number of queued engine collectors.
func Collectors() int {
	mu.Lock()
	defer mu.Unlock()
	return len(collectors)
}
