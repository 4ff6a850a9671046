package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"storefront/internal/access"
	"storefront/internal/database"
	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container with the application schema.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := database.NewPoolFromURL(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	if err := database.ApplySchema(ctx, pool); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

// SeedProducts writes the test catalog through the product repository.
// P004 is retired.
func SeedProducts(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	image := "https://cdn.example.com/p001.jpg"
	products := []model.Product{
		{ID: "P001", Name: "Phone X", Price: decimal.RequireFromString("1199.00"), Images: []string{image}, Category: "phones", IsActive: true},
		{ID: "P002", Name: "USB-C Cable", Price: decimal.RequireFromString("20.00"), Category: "accessories", IsActive: true},
		{ID: "P003", Name: "Charger 30W", Price: decimal.RequireFromString("50.00"), Category: "accessories", IsActive: true},
		{ID: "P004", Name: "Old Charger", Price: decimal.RequireFromString("10.00"), Category: "accessories", IsActive: false},
	}

	repo := repository.NewProductRepository(pool, zerolog.Nop())
	if _, err := repo.Upsert(context.Background(), products); err != nil {
		t.Fatalf("failed to seed products: %v", err)
	}
}

// GrantAdmin gives userID the admin role.
func GrantAdmin(t *testing.T, pool *pgxpool.Pool, userID string) {
	t.Helper()

	repo := repository.NewRoleRepository(pool, zerolog.Nop())
	if err := repo.Grant(context.Background(), userID, access.RoleAdmin); err != nil {
		t.Fatalf("failed to grant admin to %s: %v", userID, err)
	}
}

// CleanupDB cleans all data from test tables.
func CleanupDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	tables := []string{"order_items", "orders", "user_roles", "products"}
	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}
}

// SessionCall is one checkout session request received by FakeStripe.
type SessionCall struct {
	Form           url.Values
	IdempotencyKey string
}

// FakeStripe serves the two provider endpoints the gateway calls. Like the
// real provider it answers a repeated Idempotency-Key with the first response
// and rejects a repeated key whose parameters differ.
type FakeStripe struct {
	Server *httptest.Server

	mu       sync.Mutex
	calls    []SessionCall
	status   int
	customer string
	sessions map[string]storedSession
	created  int
}

type storedSession struct {
	form string
	body string
}

// NewFakeStripe starts a provider stub that creates sessions cs_test_1, cs_test_2, ...
func NewFakeStripe(t *testing.T) *FakeStripe {
	t.Helper()

	f := &FakeStripe{status: http.StatusOK, sessions: map[string]storedSession{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/customers", f.listCustomers)
	mux.HandleFunc("POST /v1/checkout/sessions", f.createSession)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// FailWith makes subsequent session requests answer with status.
func (f *FakeStripe) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// SetCustomer makes the customer lookup find id from now on.
func (f *FakeStripe) SetCustomer(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customer = id
}

// Calls returns the session requests received so far.
func (f *FakeStripe) Calls() []SessionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SessionCall(nil), f.calls...)
}

// Reset clears recorded calls and stored sessions and restores success responses.
func (f *FakeStripe) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.status = http.StatusOK
	f.customer = ""
	f.sessions = map[string]storedSession{}
	f.created = 0
}

func (f *FakeStripe) listCustomers(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	customer := f.customer
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if customer == "" {
		_, _ = w.Write([]byte(`{"data":[]}`))
		return
	}
	fmt.Fprintf(w, `{"data":[{"id":%q}]}`, customer)
}

func (f *FakeStripe) createSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := r.Header.Get("Idempotency-Key")
	form := r.PostForm.Encode()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, SessionCall{Form: r.PostForm, IdempotencyKey: key})

	w.Header().Set("Content-Type", "application/json")
	if prev, ok := f.sessions[key]; ok && key != "" {
		if prev.form != form {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"type":"idempotency_error","message":"Keys for idempotent requests can only be used with the same parameters they were first used with."}}`))
			return
		}
		_, _ = w.Write([]byte(prev.body))
		return
	}

	if f.status != http.StatusOK {
		w.WriteHeader(f.status)
		fmt.Fprintf(w, `{"error":{"type":"api_error","message":"stubbed failure %d"}}`, f.status)
		return
	}

	f.created++
	body := fmt.Sprintf(`{"id":"cs_test_%d","url":"https://checkout.stripe.test/pay/cs_test_%d","payment_intent":null}`, f.created, f.created)
	if key != "" {
		f.sessions[key] = storedSession{form: form, body: body}
	}
	_, _ = w.Write([]byte(body))
}
