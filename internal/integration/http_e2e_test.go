//go:build integration || !unit

package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"golang.org/x/crypto/bcrypt"

	server "lender_directory/internal/adapters/http_server"
	"lender_directory/internal/adapters/retry"
	"lender_directory/internal/app"
	"lender_directory/internal/domain"
	"lender_directory/internal/storage/memory"
	mysqlrepo "lender_directory/internal/storage/mysql"
)

// ---------- helpers ----------
func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/sql)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body, out any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		c.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return res.StatusCode
}

// ---------- the test ----------
func TestHTTP_EndToEnd_Lenders_MySQL(t *testing.T) {
	// Start isolated MySQL container
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=lenders",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?multiStatements=true&charset=utf8mb4,utf8",
		"root", hostPort, "lenders")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = mysqlrepo.Open(dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)

	// real stack over MySQL; blobs and sessions stay in process
	ctx := context.Background()
	store := retry.NewStore(mysqlrepo.New(db), 3, 0).WithBaseDelay(10 * time.Millisecond)
	lenders := app.NewLenderRepository(store, memory.NewBlobs(""), nil, app.RepoConfig{
		InterestTreatments: []string{"Serviced", "Retained", "Rolled Up"},
	})
	users := app.NewUserService(store, nil, nil, nil).WithHashCost(bcrypt.MinCost)
	if _, err := users.Add(ctx, "admin", "secret", true); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	sessions := app.NewSessionService(users, app.NewFavouriteSessions(store), memory.NewCache(), time.Hour)

	srv := server.New(10 * time.Second)
	srv.MountHandlers(&server.Handlers{Lenders: lenders, Users: users, Sessions: sessions})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	c := &client{t: t, base: ts.URL}
	var sess domain.Session
	if st := c.do(http.MethodPost, "/v1/login", map[string]string{"username": "admin", "password": "secret"}, &sess); st != http.StatusOK {
		t.Fatalf("login status %d", st)
	}
	c.token = sess.Token

	in := domain.LenderInput{
		Name:              "Acme Bridging",
		Loan:              domain.Range{Min: 50000, Max: 2000000},
		Rate:              domain.Range{Min: 0.55, Max: 1.1},
		MaxLoanToValue:    75,
		InterestTreatment: "Retained",
		CoveredLocation:   []string{"England", "Wales"},
		LoanTypes:         []domain.LoanType{domain.BridgingLoans},
		Documents:         []domain.Document{{Name: "Criteria", FileName: "criteria.pdf", Data: []byte("%PDF-1.4")}},
	}
	var created domain.Lender
	if st := c.do(http.MethodPost, "/v1/lenders", in, &created); st != http.StatusCreated {
		t.Fatalf("create status %d", st)
	}
	if created.ID == "" || len(created.CriteriaSheets) != 1 || created.Loan.Max != 2000000 {
		t.Fatalf("unexpected lender: %+v", created)
	}

	var list []domain.Lender
	if st := c.do(http.MethodGet, "/v1/lenders?minLoan=1000000&loanType=Bridging%20Loans&location=Wales", nil, &list); st != http.StatusOK {
		t.Fatalf("list status %d", st)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("filter result: %+v", list)
	}

	var fav map[string]bool
	if st := c.do(http.MethodPost, "/v1/favourites/"+created.ID+"/toggle", nil, &fav); st != http.StatusOK || !fav["favourite"] {
		t.Fatalf("toggle status %d, body %v", st, fav)
	}

	// a fresh repository sees what the first one wrote
	reloaded := app.NewLenderRepository(store, memory.NewBlobs(""), nil, app.RepoConfig{})
	again, err := reloaded.ListAll(ctx)
	if err != nil || len(again) != 1 || again[0].Name != "Acme Bridging" || len(again[0].CriteriaSheets) != 1 {
		t.Fatalf("reload = %+v, %v", again, err)
	}

	if st := c.do(http.MethodDelete, "/v1/lenders/"+created.ID, nil, nil); st != http.StatusNoContent {
		t.Fatalf("delete status %d", st)
	}
	if st := c.do(http.MethodGet, "/v1/lenders/"+created.ID, nil, nil); st != http.StatusNotFound {
		t.Fatalf("get after delete status %d", st)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM favorites").Scan(&n); err != nil || n != 0 {
		t.Fatalf("favorites left: %d, %v", n, err)
	}
}
