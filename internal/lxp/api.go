package lxp

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// Identity is the result of a successful sign-in.
type Identity struct {
	Token     string
	SubjectID string
}

const signInQuery = `query SignIn($input: SignInInput!) {
  signIn(input: $input) {
    accessToken
    user { id }
  }
}`

// Authenticate exchanges credentials for an access token.
func (c *Client) Authenticate(ctx context.Context, identifier, secret string) (Identity, error) {
	var out struct {
		SignIn struct {
			AccessToken string `json:"accessToken"`
			User        struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"signIn"`
	}
	err := c.do(ctx, "signIn", "", signInQuery, map[string]any{
		"input": map[string]any{"email": identifier, "password": secret},
	}, &out)
	if err != nil {
		return Identity{}, err
	}
	if out.SignIn.AccessToken == "" {
		return Identity{}, errors.New("lxp signIn: empty access token")
	}
	return Identity{Token: out.SignIn.AccessToken, SubjectID: out.SignIn.User.ID}, nil
}

// TaskKind distinguishes practical assignments from tests.
type TaskKind string

const (
	KindTask TaskKind = "TASK"
	KindTest TaskKind = "TEST"
)

// Task is an assignment with a deadline.
type Task struct {
	Name      string
	Topic     string
	Kind      TaskKind
	Deadline  time.Time
	ContentID string
	TopicID   string
	// Link is empty when either id is unknown.
	Link string
}

const tasksQuery = `query StudentAvailableTasks($input: StudentAvailableTasksInput!) {
  studentAvailableTasks(input: $input) {
    items {
      kind
      taskDeadline
      contentBlock {
        ... on TaskDisciplineTopicContentBlock { id name }
        ... on TestDisciplineTopicContentBlock { id name }
      }
      topic { name id }
    }
  }
}`

// Tasks lists the subject's available tasks that have a deadline, sorted by
// deadline ascending.
func (c *Client) Tasks(ctx context.Context, token, subjectID string) ([]Task, error) {
	var out struct {
		Tasks struct {
			Items []struct {
				Kind         string     `json:"kind"`
				TaskDeadline *time.Time `json:"taskDeadline"`
				ContentBlock *struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"contentBlock"`
				Topic *struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"topic"`
			} `json:"items"`
		} `json:"studentAvailableTasks"`
	}
	err := c.do(ctx, "studentAvailableTasks", token, tasksQuery, map[string]any{
		"input": map[string]any{
			"studentId": subjectID,
			"pageSize":  50,
			"page":      1,
			"filters":   map[string]any{"fromArchivedDiscipline": false},
		},
	}, &out)
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(out.Tasks.Items))
	for _, it := range out.Tasks.Items {
		if it.TaskDeadline == nil || it.TaskDeadline.IsZero() {
			continue
		}
		t := Task{Name: "Без названия", Topic: "Без темы", Kind: KindTest, Deadline: *it.TaskDeadline}
		if it.Kind == string(KindTask) {
			t.Kind = KindTask
		}
		if cb := it.ContentBlock; cb != nil {
			t.ContentID = cb.ID
			if cb.Name != "" {
				t.Name = cb.Name
			}
		}
		if tp := it.Topic; tp != nil {
			t.TopicID = tp.ID
			if tp.Name != "" {
				t.Topic = tp.Name
			}
		}
		if t.ContentID != "" && t.TopicID != "" && c.cfg.TaskLinkBase != "" {
			t.Link = c.cfg.TaskLinkBase + "/topics/" + t.TopicID + "/content/" + t.ContentID
		}
		tasks = append(tasks, t)
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Deadline.Before(tasks[j].Deadline) })
	return tasks, nil
}

// Notification is one inbox entry. Body may contain HTML.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	IsRead    bool      `json:"isRead"`
}

type NotificationPage struct {
	Items      []Notification `json:"items"`
	HasMore    bool           `json:"hasMore"`
	Page       int            `json:"page"`
	Total      int            `json:"total"`
	TotalPages int            `json:"totalPages"`
}

const notificationsQuery = `query GetNotifications($input: NotificationsInput!) {
  notifications(input: $input) {
    items { id title body createdAt isRead }
    hasMore
    page
    total
    totalPages
  }
}`

func (c *Client) Notifications(ctx context.Context, token string, page, pageSize int) (NotificationPage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	var out struct {
		Notifications NotificationPage `json:"notifications"`
	}
	err := c.do(ctx, "notifications", token, notificationsQuery, map[string]any{
		"input": map[string]any{"page": page, "pageSize": pageSize, "filters": map[string]any{}},
	}, &out)
	return out.Notifications, err
}

var assignmentKeywords = []string{
	"сдано", "не сдано", "баллы", "задание", "оценк", "статус", "проверен", "выставлен",
}

// FilterAssignments keeps notifications about submissions and grades.
func FilterAssignments(items []Notification) []Notification {
	out := make([]Notification, 0, len(items))
	for _, n := range items {
		title := strings.ToLower(n.Title)
		body := strings.ToLower(n.Body)
		for _, kw := range assignmentKeywords {
			if strings.Contains(title, kw) || strings.Contains(body, kw) {
				out = append(out, n)
				break
			}
		}
	}
	return out
}
