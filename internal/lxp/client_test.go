package lxp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "lxpbot/pkg/logx"
)

type recorded struct {
	auth  string
	query string
	vars  map[string]any
}

func newServer(t *testing.T, status int, reply string, rec *recorded) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body gqlRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if rec != nil {
			rec.auth = r.Header.Get("Authorization")
			rec.query = body.Query
			rec.vars = body.Variables
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return New(Config{Endpoint: srv.URL, Timeout: 2 * time.Second, TaskLinkBase: "https://lxp.example/"}, logx.Nop())
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	var rec recorded
	c := newServer(t, 200, `{"data":{"signIn":{"accessToken":"tok-1","user":{"id":"stu-9"}}}}`, &rec)

	id, err := c.Authenticate(context.Background(), "a@b.cd", "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.Token != "tok-1" || id.SubjectID != "stu-9" {
		t.Fatalf("identity = %+v", id)
	}
	if rec.auth != "" {
		t.Fatalf("sign-in must not send a bearer, got %q", rec.auth)
	}
	input := rec.vars["input"].(map[string]any)
	if input["email"] != "a@b.cd" || input["password"] != "secret" {
		t.Fatalf("vars = %v", rec.vars)
	}
}

func TestAuthenticateGraphQLError(t *testing.T) {
	t.Parallel()
	c := newServer(t, 200, `{"errors":[{"message":"Invalid credentials","extensions":{"code":"UNAUTHENTICATED"}}]}`, nil)
	_, err := c.Authenticate(context.Background(), "a@b.cd", "bad")
	var gqlErr *GraphQLError
	if !errors.As(err, &gqlErr) || gqlErr.Message != "Invalid credentials" {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatal("UNAUTHENTICATED should match ErrUnauthorized")
	}
}

func TestHTTPUnauthorized(t *testing.T) {
	t.Parallel()
	c := newServer(t, 401, `nope`, nil)
	_, err := c.Tasks(context.Background(), "tok", "stu")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
}

func TestTasksMapsAndSorts(t *testing.T) {
	t.Parallel()
	var rec recorded
	c := newServer(t, 200, `{"data":{"studentAvailableTasks":{"items":[
		{"kind":"TEST","taskDeadline":"2024-03-10T12:00:00Z","contentBlock":{"id":"c2","name":"Quiz"},"topic":{"id":"t2","name":"Topic 2"}},
		{"kind":"TASK","taskDeadline":"2024-03-05T12:00:00Z","contentBlock":{"id":"c1","name":"Lab"},"topic":{"id":"t1","name":"Topic 1"}},
		{"kind":"TASK","taskDeadline":null,"contentBlock":{"id":"c3","name":"No deadline"},"topic":{"id":"t3","name":"x"}},
		{"kind":"TASK","taskDeadline":"2024-03-07T00:00:00Z","contentBlock":null,"topic":null}
	]}}}`, &rec)

	tasks, err := c.Tasks(context.Background(), "tok-1", "stu-9")
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if rec.auth != "Bearer tok-1" {
		t.Fatalf("Authorization = %q", rec.auth)
	}
	if !strings.Contains(rec.query, "studentAvailableTasks") {
		t.Fatalf("query = %q", rec.query)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	if tasks[0].Name != "Lab" || tasks[0].Kind != KindTask || tasks[0].Link != "https://lxp.example/topics/t1/content/c1" {
		t.Fatalf("tasks[0] = %+v", tasks[0])
	}
	if tasks[1].Name != "Без названия" || tasks[1].Topic != "Без темы" || tasks[1].Link != "" {
		t.Fatalf("tasks[1] = %+v", tasks[1])
	}
	if tasks[2].Kind != KindTest {
		t.Fatalf("tasks[2] = %+v", tasks[2])
	}
}

func TestNotificationsAndFilter(t *testing.T) {
	t.Parallel()
	c := newServer(t, 200, `{"data":{"notifications":{"items":[
		{"id":"1","title":"Задание проверено","body":"ok","createdAt":"2024-03-01T10:00:00Z","isRead":false},
		{"id":"2","title":"Новости","body":"<p>Праздник</p>","createdAt":"2024-03-01T10:00:00Z","isRead":true},
		{"id":"3","title":"Итоги","body":"Выставлены БАЛЛЫ","createdAt":"2024-03-01T10:00:00Z","isRead":true}
	],"hasMore":false,"page":1,"total":3,"totalPages":1}}}`, nil)

	page, err := c.Notifications(context.Background(), "tok", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || len(page.Items) != 3 {
		t.Fatalf("page = %+v", page)
	}
	got := FilterAssignments(page.Items)
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("filtered = %+v", got)
	}
}

func TestTimeoutIsAnError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	c := New(Config{Endpoint: srv.URL, Timeout: 20 * time.Millisecond}, logx.Nop())
	if _, err := c.Authenticate(context.Background(), "a@b.cd", "x"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}
