package upstream

import (
	"log/slog"
	"math/rand"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/acme/settlement/internal/repository"
)

// chaosStatuses are the failures the real API is known to produce.
var chaosStatuses = []int{
	http.StatusBadRequest,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
}

// Chaos fails a fraction of requests. A zero Rate disables it.
type Chaos struct {
	Rate float64
	// Rand returns a value in [0, 1). Defaults to a locked math/rand source.
	Rand func() float64
}

func (c Chaos) middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	roll := c.Rand
	if roll == nil {
		var mu sync.Mutex
		src := rand.New(rand.NewSource(rand.Int63()))
		roll = func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return src.Float64()
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c.Rate > 0 {
				if v := roll(); v < c.Rate {
					status := chaosStatuses[int(v/c.Rate*float64(len(chaosStatuses)))%len(chaosStatuses)]
					logger.Debug("injecting failure", "path", r.URL.Path, "status", status)
					http.Error(w, http.StatusText(status), status)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRouter creates the simulator router.
func NewRouter(
	merchantRepo *repository.MerchantRepo,
	txnRepo *repository.TransactionRepo,
	pageSize int,
	chaos Chaos,
	logger *slog.Logger,
) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	h := &Handlers{
		merchants: merchantRepo,
		txns:      txnRepo,
		pageSize:  pageSize,
		logger:    logger,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(chaos.middleware(logger))
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/merchants", h.ListMerchants)
	r.Get("/merchants/{id}", h.GetMerchant)
	r.Get("/transactions", h.ListTransactions)

	return r
}
